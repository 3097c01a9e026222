package jobscout

import (
	"testing"

	"jobscout-backend/lib/scrapers/linkedin/posting"

	"github.com/stretchr/testify/require"
)

func TestCanonicalExperienceLevel(t *testing.T) {
	cases := []struct {
		hint string
		want string
	}{
		{"Mid-Senior level", "Mid-Senior level"},
		{"mid-senior level", "Mid-Senior level"},
		{"Entry level", "Entry level"},
		{"  Internship ", "Internship"},
		{"Director", "Director"},
		// prose windows resemble no ladder rung
		{"5+ years of experience with distributed systems and...", posting.Unknown},
		{"", posting.Unknown},
		{posting.Unknown, posting.Unknown},
	}
	for _, c := range cases {
		require.Equal(t, c.want, CanonicalExperienceLevel(c.hint), "hint %q", c.hint)
	}
}

func TestAnnotateExperienceLevels(t *testing.T) {
	jobs := []posting.JobRecord{
		{JobID: "1", ExperienceNeeded: "entry level"},
		{JobID: "2", ExperienceNeeded: "requirements: experience shipping Go services and..."},
	}
	AnnotateExperienceLevels(jobs)

	require.Equal(t, "Entry level", jobs[0].ExperienceLevel)
	require.Equal(t, posting.Unknown, jobs[1].ExperienceLevel)
}

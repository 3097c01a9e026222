package jobscout

import (
	"strings"

	"jobscout-backend/lib/scrapers/linkedin/posting"

	"github.com/antzucaro/matchr"
)

// ExperienceLevels is the canonical seniority ladder the listing
// service itself uses in its f_E search filter, in ascending order.
var ExperienceLevels = []string{
	"Internship",
	"Entry level",
	"Associate",
	"Mid-Senior level",
	"Director",
	"Executive",
}

// scraped hints are noisy, below this similarity a match is noise too
const experienceLevelThreshold = 0.82

// CanonicalExperienceLevel maps a scraped experience hint onto the
// canonical ladder via closest string match. Hints that resemble no
// level (keyword windows cut from prose, usually) stay unknown.
func CanonicalExperienceLevel(hint string) string {
	if hint == "" || hint == posting.Unknown {
		return posting.Unknown
	}
	hint = strings.ToLower(strings.TrimSpace(hint))

	mostSimilar := ""
	var similarity float64
	for _, level := range ExperienceLevels {
		sim := matchr.JaroWinkler(hint, strings.ToLower(level), false)
		if sim > similarity {
			similarity = sim
			mostSimilar = level
		}
	}
	if similarity < experienceLevelThreshold {
		return posting.Unknown
	}
	return mostSimilar
}

// AnnotateExperienceLevels fills in the canonical level for every
// record, from its raw experience hint.
func AnnotateExperienceLevels(jobs []posting.JobRecord) {
	for i := range jobs {
		jobs[i].ExperienceLevel = CanonicalExperienceLevel(jobs[i].ExperienceNeeded)
	}
}

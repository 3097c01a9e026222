package jobscout

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"jobscout-backend/lib/scrapers/linkedin/posting"
)

// ValidateFields rejects any configured output column the record type
// doesn't know, so a config typo fails at startup instead of producing
// a silently empty column.
func ValidateFields(fields []string) error {
	if len(fields) == 0 {
		return fmt.Errorf("output_fields must not be empty")
	}
	var probe posting.JobRecord
	for _, name := range fields {
		if _, ok := probe.Field(name); !ok {
			return fmt.Errorf("unknown output field: %q", name)
		}
	}
	return nil
}

// WriteCSV serializes the records in the configured column order. A
// record missing a field gets the explicit unknown sentinel, keeping
// the column set uniform across rows.
func WriteCSV(w io.Writer, fields []string, jobs []posting.JobRecord) error {
	if err := ValidateFields(fields); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(fields); err != nil {
		return err
	}

	row := make([]string, len(fields))
	for _, job := range jobs {
		for i, name := range fields {
			value, _ := job.Field(name)
			if value == "" {
				value = posting.Unknown
			}
			row[i] = value
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func WriteCSVFile(path string, fields []string, jobs []posting.JobRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	err = WriteCSV(f, fields, jobs)
	if err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

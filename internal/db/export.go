package db

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// ExportResults writes the run results to a CSV file, one row per check in
// registration order.
func (db *DB) ExportResults(resultsExportFile string) error {
	csvFile, err := os.Create(resultsExportFile)
	if err != nil {
		return err
	}
	defer csvFile.Close()

	csvWriter := csv.NewWriter(csvFile)

	if err := csvWriter.Write([]string{
		"#",
		"Check",
		"Passed",
		"Message",
		"Details",
		"Timestamp",
	}); err != nil {
		return err
	}

	for i, r := range db.Results() {
		details, err := json.Marshal(r.Details)
		if err != nil {
			return err
		}

		err = csvWriter.Write([]string{
			strconv.Itoa(i + 1),
			r.Name,
			strconv.FormatBool(r.Passed),
			r.Message,
			string(details),
			r.Timestamp.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
	}

	csvWriter.Flush()

	return csvWriter.Error()
}

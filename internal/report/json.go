package report

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/mailoreply/smoketest/internal/db"
	"github.com/mailoreply/smoketest/internal/helpers"
)

// jsonReport is the persisted report document. The console JSON summary
// uses the same shape.
type jsonReport struct {
	Date    string   `json:"date" validate:"required"`
	Target  string   `json:"target"`
	Args    []string `json:"args" validate:"args"`
	Version string   `json:"version,omitempty" validate:"smoketest_version"`

	Summary *summary     `json:"summary" validate:"required"`
	Results []*db.Result `json:"results" validate:"dive,required"`
}

type summary struct {
	Total       int     `json:"total" validate:"min=0"`
	Passed      int     `json:"passed" validate:"min=0,ltefield=Total"`
	Failed      int     `json:"failed" validate:"min=0,ltefield=Total"`
	SuccessRate float64 `json:"success_rate" validate:"min=0,max=100"`
}

func newJsonReport(s *db.Statistics, reportTime time.Time, target string, args []string) *jsonReport {
	results := s.Results
	if results == nil {
		results = []*db.Result{}
	}
	if args == nil {
		args = []string{}
	}

	return &jsonReport{
		Date:    reportTime.Format(time.RFC3339),
		Target:  target,
		Args:    args,
		Version: version,
		Summary: &summary{
			Total:       s.Total,
			Passed:      s.Passed,
			Failed:      s.Failed,
			SuccessRate: s.SuccessRate,
		},
		Results: results,
	}
}

// printFullReportToJson validates the report and writes it to reportFile.
func printFullReportToJson(
	s *db.Statistics, reportFile string, reportTime time.Time,
	target string, args []string,
) error {
	report := newJsonReport(s, reportTime, target, args)

	if err := validateReportData(report); err != nil {
		return err
	}

	jsonBytes, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return errors.Wrap(err, "couldn't dump report to JSON")
	}

	if err = helpers.ReplaceFile(reportFile, jsonBytes); err != nil {
		return errors.Wrap(err, "couldn't write report to file")
	}

	return nil
}

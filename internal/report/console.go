package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/mailoreply/smoketest/internal/db"
	"github.com/mailoreply/smoketest/internal/helpers"
)

const (
	passMark = "✅ PASS"
	failMark = "❌ FAIL"

	// The maximum length of a message in the summary table.
	maxMessageLength = 80
)

// NewTracer returns a callback printing one line per completed check to
// w. The details of a failed check follow its line as indented JSON.
func NewTracer(w io.Writer) func(*db.Result) {
	var mu sync.Mutex

	return func(r *db.Result) {
		mu.Lock()
		defer mu.Unlock()

		fmt.Fprintln(w, traceLine(r))

		if r.Passed || len(r.Details) == 0 {
			return
		}

		details, err := json.MarshalIndent(r.Details, "   ", "  ")
		if err != nil {
			fmt.Fprintf(w, "   Details: %v\n", r.Details)
			return
		}
		fmt.Fprintf(w, "   Details: %s\n", details)
	}
}

// Trace prints a completed check to stdout.
var Trace = NewTracer(os.Stdout)

func traceLine(r *db.Result) string {
	status := passMark
	if !r.Passed {
		status = failMark
	}

	return fmt.Sprintf("%s: %s - %s", status, r.Name, r.Message)
}

// RenderConsoleReport prints a console report in selected format.
func RenderConsoleReport(
	s *db.Statistics,
	reportTime time.Time,
	target string,
	args []string,
	format string,
) error {
	return renderConsoleReport(os.Stdout, s, reportTime, target, args, format)
}

func renderConsoleReport(
	w io.Writer,
	s *db.Statistics,
	reportTime time.Time,
	target string,
	args []string,
	format string,
) error {
	switch format {
	case consoleReportTextFormat:
		printConsoleReportTable(w, s, reportTime, target)
	case consoleReportJsonFormat:
		err := printConsoleReportJson(w, s, reportTime, target, args)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}

	return nil
}

// printConsoleReportTable prepares and prints a console report in tabular
// format: one row per check in registration order, then the details of
// failed checks.
func printConsoleReportTable(w io.Writer, s *db.Statistics, reportTime time.Time, target string) {
	var buffer strings.Builder

	fmt.Fprintf(&buffer, "\nSmoke Test Summary:\n")

	table := tablewriter.NewWriter(&buffer)
	table.SetHeader([]string{"#", "Check", "Status", "Message"})

	for i, r := range s.Results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}

		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			r.Name,
			status,
			helpers.Truncate(r.Message, maxMessageLength),
		})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Date: %s", reportTime.Format("2006-01-02")),
		fmt.Sprintf("Total: %d", s.Total),
		fmt.Sprintf("Passed: %d / Failed: %d", s.Passed, s.Failed),
		fmt.Sprintf("Success Rate: %.1f%%", s.SuccessRate),
	})
	table.Render()

	if target != "" {
		fmt.Fprintf(&buffer, "Target: %s\n", target)
	}

	if len(s.FailedChecks) > 0 {
		fmt.Fprintf(&buffer, "\nFailed checks:\n")
		for _, r := range s.FailedChecks {
			fmt.Fprintf(&buffer, "  - %s: %s\n", r.Name, r.Message)
		}
	}

	if s.AllPassed() {
		fmt.Fprintf(&buffer, "\nAll checks passed.\n")
	} else if s.Fatal {
		fmt.Fprintf(&buffer, "\nThe run could not be initialized.\n")
	}

	fmt.Fprintln(w, buffer.String())
}

// printConsoleReportJson prints the summary document to w.
func printConsoleReportJson(w io.Writer, s *db.Statistics, reportTime time.Time, target string, args []string) error {
	report := newJsonReport(s, reportTime, target, args)

	jsonBytes, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "couldn't export report to JSON")
	}

	fmt.Fprintln(w, string(jsonBytes))

	return nil
}

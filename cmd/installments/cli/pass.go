package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/campfees/installments/internal/installments"
	"github.com/campfees/installments/internal/shared"
)

// Exit codes for the pass command.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitLockHeld      = 3
	ExitRecordsFailed = 10
)

// PassRunner runs one locked scheduling pass.
type PassRunner interface {
	Run(ctx context.Context, now time.Time) (installments.PassSummary, error)
}

// PassOptions defines available flags for the pass command.
type PassOptions struct {
	Now        string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
	Clock      func() time.Time
}

// PassReport describes the JSON output of the pass command.
type PassReport struct {
	Now            time.Time         `json:"now"`
	Transitioned   int               `json:"transitioned"`
	RemindersFired int               `json:"reminders_fired"`
	Errors         []PassRecordError `json:"errors"`
}

// PassRecordError is one installment the pass could not process.
type PassRecordError struct {
	InstallmentID string `json:"installment_id"`
	Stage         string `json:"stage"`
	Error         string `json:"error"`
}

// PassCommand runs a scheduling pass in-process and prints the summary.
func PassCommand(ctx context.Context, runner PassRunner, opts PassOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	now := opts.Clock()
	if raw := strings.TrimSpace(opts.Now); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "pass: invalid --now %q (expected RFC3339)\n", opts.Now)
			return ExitFailure
		}
		now = parsed
	}

	summary, err := runner.Run(ctx, now)
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			_, _ = fmt.Fprintln(opts.Stderr, "pass: another scheduling pass is running")
			return ExitLockHeld
		}
		_, _ = fmt.Fprintf(opts.Stderr, "pass: %v\n", err)
		return ExitFailure
	}

	report := buildPassReport(now, summary)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(report); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "pass: encode json: %v\n", err)
			return ExitFailure
		}
	} else {
		renderPassHuman(opts.Stdout, report)
	}
	if len(report.Errors) > 0 {
		return ExitRecordsFailed
	}
	return ExitOK
}

func buildPassReport(now time.Time, summary installments.PassSummary) PassReport {
	report := PassReport{
		Now:            now,
		Transitioned:   summary.Transitioned,
		RemindersFired: summary.RemindersFired,
		Errors:         make([]PassRecordError, 0, len(summary.Errors)),
	}
	for _, recErr := range summary.Errors {
		msg := ""
		if recErr.Err != nil {
			msg = recErr.Err.Error()
		}
		report.Errors = append(report.Errors, PassRecordError{
			InstallmentID: recErr.InstallmentID.String(),
			Stage:         recErr.Stage,
			Error:         msg,
		})
	}
	return report
}

func renderPassHuman(w io.Writer, report PassReport) {
	_, _ = fmt.Fprintf(w, "Scheduling pass at %s\n", report.Now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "  transitioned:    %d\n", report.Transitioned)
	_, _ = fmt.Fprintf(w, "  reminders fired: %d\n", report.RemindersFired)
	if len(report.Errors) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "  errors:          %d\n", len(report.Errors))
	for _, recErr := range report.Errors {
		_, _ = fmt.Fprintf(w, "    %s [%s] %s\n", recErr.InstallmentID, recErr.Stage, recErr.Error)
	}
}

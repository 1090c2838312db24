package service

import (
	"fmt"
	"time"

	"github.com/yurifrl/meisai/pkg/models"
)

// PeriodResult is what one statement period produced. Err is the navigation
// failure that ended the period, if any; statements collected before it are
// kept.
type PeriodResult struct {
	Period     models.Period
	Exports    []models.StatementExport
	Statements []models.CardStatement
	Err        error
}

// CardError is a download that failed for one card.
type CardError struct {
	Period string
	Card   string
	Err    error
}

func (e CardError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Period, e.Card, e.Err)
}

// FileError is an export that could not be summarized.
type FileError struct {
	Period string
	Card   string
	Path   string
	Err    error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// RunResult records every phase of a run.
type RunResult struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Login   error
	Periods []PeriodResult
	Cards   []CardError
	Files   []FileError

	Report    string
	Notified  bool
	NotifyErr error
}

// Statements returns every collected statement in processing order.
func (r *RunResult) Statements() []models.CardStatement {
	var out []models.CardStatement
	for _, p := range r.Periods {
		out = append(out, p.Statements...)
	}
	return out
}

// Exports returns every captured export in processing order.
func (r *RunResult) Exports() []models.StatementExport {
	var out []models.StatementExport
	for _, p := range r.Periods {
		out = append(out, p.Exports...)
	}
	return out
}


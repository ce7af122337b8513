package models

import "time"

// Attempt outcomes
const (
	OutcomeOK     = "ok"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

// Attempt records one retrieval strategy tried for a URL
type Attempt struct {
	Strategy  string
	Outcome   string
	ErrorKind string
	Error     string
	Bytes     int
	Duration  time.Duration
}

// Succeeded reports whether the attempt produced markup
func (a Attempt) Succeeded() bool {
	return a.Outcome == OutcomeOK
}

// Result is the outcome of one fetch-parse-save run for a date
type Result struct {
	Date       time.Time
	URL        string
	Table      *Table
	OutputPath string
	Strategy   string            // strategy that produced the page
	Locations  map[string]string // sink name -> location written
	Attempts   []Attempt
	Err        error
}

// Empty reports whether the run produced no data rows
func (r *Result) Empty() bool {
	return r == nil || r.Table.Empty()
}

// Package testparser turns captured runner output into verdicts.
package testparser

import (
	"github.com/AndreyAkinshin/gtm/internal/process"
)

// Status is the outcome of one leaf.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Verdict is the terminal result recorded for a leaf.
type Verdict struct {
	Status  Status
	Message string      // set when failed
	Counts  *TestCounts // nil when the parser extracted no counts
}

// Passed reports whether the verdict is a pass.
func (v Verdict) Passed() bool {
	return v.Status == StatusPassed
}

// Pass returns a passing verdict.
func Pass(counts *TestCounts) Verdict {
	return Verdict{Status: StatusPassed, Counts: counts}
}

// Fail returns a failing verdict with the given message.
func Fail(message string) Verdict {
	return Verdict{Status: StatusFailed, Message: message}
}

// FailedTest holds information about a single failed test.
type FailedTest struct {
	Name   string // test or scenario name
	Reason string // failure reason or location
}

// TestCounts holds parsed test result counts.
type TestCounts struct {
	Passed      int
	Failed      int
	Errors      int
	Skipped     int
	Total       int
	Parsed      bool         // true if counts were successfully extracted
	FailedTests []FailedTest // details of failed tests
}

// Add adds another TestCounts to this one, aggregating the counts.
// The Parsed flag uses "sticky true" semantics: if any added TestCounts
// has Parsed=true, the aggregate will have Parsed=true.
func (tc *TestCounts) Add(other *TestCounts) {
	if other == nil {
		return
	}
	tc.Passed += other.Passed
	tc.Failed += other.Failed
	tc.Errors += other.Errors
	tc.Skipped += other.Skipped
	tc.Total += other.Total
	tc.FailedTests = append(tc.FailedTests, other.FailedTests...)
	if other.Parsed {
		tc.Parsed = true
	}
}

// Parser decides a verdict from a runner's captured output. Only the output
// is consulted; the exit code is not.
type Parser interface {
	Parse(out process.Output) Verdict
	Name() string
}

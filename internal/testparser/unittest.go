package testparser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/AndreyAkinshin/gtm/internal/process"
)

// UnknownStatus is the failure message when stderr has no lines at all.
const UnknownStatus = "Unknown status"

var (
	unittestRanRegex    = regexp.MustCompile(`^Ran (\d+) tests? in `)
	unittestCountRegex  = regexp.MustCompile(`(unexpected successes|expected failures|failures|errors|skipped)=(\d+)`)
	unittestHeaderRegex = regexp.MustCompile(`^(FAIL|ERROR): (.+)$`)
)

// UnittestParser reads the status line python's unittest prints last on stderr.
type UnittestParser struct{}

// Name returns the parser name.
func (p *UnittestParser) Name() string {
	return "unittest"
}

// Parse passes the leaf when the last non-empty stderr line starts with OK.
// Any other last line becomes the failure message.
//
//	Ran 3 tests in 0.002s
//
//	FAILED (failures=1, errors=1)
func (p *UnittestParser) Parse(out process.Output) Verdict {
	lines := nonEmptyLines(stripansi.Strip(out.Stderr))
	if len(lines) == 0 {
		return Fail(UnknownStatus)
	}

	status := strings.TrimSpace(lines[len(lines)-1])
	counts := p.counts(lines, status)

	if !strings.HasPrefix(status, "OK") {
		v := Fail(status)
		v.Counts = counts
		return v
	}
	return Pass(counts)
}

func (p *UnittestParser) counts(lines []string, status string) *TestCounts {
	ran := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if m := unittestRanRegex.FindStringSubmatch(strings.TrimSpace(lines[i])); m != nil {
			ran, _ = strconv.Atoi(m[1])
			break
		}
	}
	if ran < 0 {
		return nil
	}

	counts := &TestCounts{Parsed: true}
	for _, m := range unittestCountRegex.FindAllStringSubmatch(status, -1) {
		n, _ := strconv.Atoi(m[2])
		switch m[1] {
		case "failures", "unexpected successes":
			counts.Failed += n
		case "errors":
			counts.Errors += n
		case "skipped":
			counts.Skipped += n
		}
	}

	counts.Passed = ran - counts.Failed - counts.Errors - counts.Skipped
	if counts.Passed < 0 {
		counts.Passed = 0
	}
	counts.Total = counts.Passed + counts.Failed + counts.Errors + counts.Skipped
	counts.FailedTests = p.failedTests(lines)
	return counts
}

// failedTests collects FAIL:/ERROR: blocks. The reason is the last line of the
// traceback, which carries the assertion or exception message.
func (p *UnittestParser) failedTests(lines []string) []FailedTest {
	var failed []FailedTest
	for i, line := range lines {
		m := unittestHeaderRegex.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		reason := ""
		for j := i + 1; j < len(lines); j++ {
			l := strings.TrimSpace(lines[j])
			if isSeparator(l, '=') || (isSeparator(l, '-') && j > i+1) {
				break
			}
			if !isSeparator(l, '-') {
				reason = l
			}
		}
		failed = append(failed, FailedTest{Name: m[2], Reason: reason})
	}
	return failed
}

// isSeparator matches the ==== and ---- rules unittest prints between blocks.
func isSeparator(line string, ch byte) bool {
	if len(line) < 10 {
		return false
	}
	for i := 0; i < len(line); i++ {
		if line[i] != ch {
			return false
		}
	}
	return true
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, strings.TrimRight(l, "\r"))
		}
	}
	return lines
}

package testparser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/AndreyAkinshin/gtm/internal/process"
)

// NoSummary is the failure message when the feature summary line is missing.
const NoSummary = "behave summary not found"

// behaveSummaryOffset is where behave's summary block puts the feature line:
// features, scenarios, steps, then the timing line.
const behaveSummaryOffset = 4

var (
	behaveSummaryRegex  = regexp.MustCompile(`(\d+) features? passed, (\d+) failed(?:, (\d+) errors?)?, (\d+) skipped`)
	behaveFailingRegex  = regexp.MustCompile(`^\s+(\S+:\d+)\s+(.+)$`)
	behaveFailingHeader = "Failing scenarios:"
)

// BehaveParser reads the feature count line of behave's summary block.
type BehaveParser struct {
	// Scan searches backwards for the summary line instead of reading the
	// fixed position. Useful when a formatter prints extra trailing lines.
	Scan bool
}

// Name returns the parser name.
func (p *BehaveParser) Name() string {
	return "behave"
}

// Parse extracts feature counts from behave stdout such as:
//
//	1 feature passed, 0 failed, 0 skipped
//	3 scenarios passed, 0 failed, 0 skipped
//	10 steps passed, 0 failed, 0 skipped, 0 undefined
//	Took 0m0.012s
//
// The leaf fails when anything failed, errored or was skipped, and also when
// nothing passed. A missing summary counts as zero of everything.
func (p *BehaveParser) Parse(out process.Output) Verdict {
	lines := strings.Split(strings.TrimSuffix(stripansi.Strip(out.Stdout), "\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}

	line, m := p.summary(lines)
	counts := &TestCounts{}
	if m != nil {
		counts.Parsed = true
		counts.Passed = atoi(m[1])
		counts.Failed = atoi(m[2])
		counts.Errors = atoi(m[3])
		counts.Skipped = atoi(m[4])
		counts.Total = counts.Passed + counts.Failed + counts.Errors + counts.Skipped
		counts.FailedTests = failingScenarios(lines)
	}

	if counts.Failed > 0 || counts.Errors > 0 || counts.Skipped > 0 || counts.Passed == 0 {
		msg := NoSummary
		if m != nil {
			msg = strings.TrimSpace(line)
		}
		v := Fail(msg)
		if m != nil {
			v.Counts = counts
		}
		return v
	}
	return Pass(counts)
}

func (p *BehaveParser) summary(lines []string) (string, []string) {
	if p.Scan {
		for i := len(lines) - 1; i >= 0; i-- {
			if m := behaveSummaryRegex.FindStringSubmatch(lines[i]); m != nil {
				return lines[i], m
			}
		}
		return "", nil
	}

	i := len(lines) - behaveSummaryOffset
	if i < 0 {
		return "", nil
	}
	return lines[i], behaveSummaryRegex.FindStringSubmatch(lines[i])
}

// failingScenarios reads the indented list behave prints under
// "Failing scenarios:".
func failingScenarios(lines []string) []FailedTest {
	var failed []FailedTest
	in := false
	for _, l := range lines {
		if strings.TrimSpace(l) == behaveFailingHeader {
			in = true
			continue
		}
		if !in {
			continue
		}
		m := behaveFailingRegex.FindStringSubmatch(l)
		if m == nil {
			break
		}
		failed = append(failed, FailedTest{Name: strings.TrimSpace(m[2]), Reason: m[1]})
	}
	return failed
}

// atoi treats a missing group as zero.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Package testhelper loads recorded runner output cases for checking how gtm
// judges unittest and behave runs.
//
// Cases live in <root>/<runner>/<name>.json:
//
//	{
//	  "description": "failed status line becomes the message",
//	  "stderr": "Ran 2 tests in 0.002s\n\nFAILED (failures=1)\n",
//	  "exit_code": 1,
//	  "expect": {"status": "failed", "message": "FAILED (failures=1)"}
//	}
//
// Example usage in a Go test:
//
//	root, err := testhelper.FindFixturesRoot()
//	if err != nil {
//	    t.Fatal(err)
//	}
//	cases, err := testhelper.LoadSuite(root, "unittest")
//	if err != nil {
//	    t.Fatal(err)
//	}
//	for _, tc := range cases {
//	    t.Run(tc.Name, func(t *testing.T) {
//	        v := parser.Parse(process.Output{Stdout: tc.Stdout, Stderr: tc.Stderr})
//	        for _, d := range tc.Expect.Diff(string(v.Status), v.Message, counts(v)) {
//	            t.Error(d)
//	        }
//	    })
//	}
package testhelper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FixturesDir is the fixtures directory, relative to the module root, that
// FindFixturesRoot looks for.
const FixturesDir = "test/fixtures/outputs"

// Case is one recorded runner invocation and the verdict gtm must reach.
type Case struct {
	// Name is derived from the file name.
	Name string `json:"-"`

	// Runner is the suite directory name, such as "unittest" or "behave".
	Runner string `json:"-"`

	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`

	// SummaryScan enables backward summary search for behave cases.
	SummaryScan bool `json:"summary_scan,omitempty"`

	Expect Expectation `json:"expect"`

	Description string `json:"description,omitempty"`

	// Skip marks the case as skipped if true.
	Skip bool `json:"skip,omitempty"`
}

// Expectation is the expected verdict. Nil counts are not checked.
type Expectation struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Passed  *int   `json:"passed,omitempty"`
	Total   *int   `json:"total,omitempty"`
}

// Counts are the parsed counts of an actual verdict. A nil *Counts means the
// parser extracted none.
type Counts struct {
	Passed int
	Total  int
}

// Diff lists every way the actual verdict differs from e. An empty result
// means the verdict matches.
func (e Expectation) Diff(status, message string, counts *Counts) []string {
	var diffs []string
	if status != e.Status {
		diffs = append(diffs, fmt.Sprintf("status = %q, want %q", status, e.Status))
	}
	if message != e.Message {
		diffs = append(diffs, fmt.Sprintf("message = %q, want %q", message, e.Message))
	}
	if e.Passed == nil && e.Total == nil {
		return diffs
	}
	if counts == nil {
		return append(diffs, "counts were not parsed")
	}
	if e.Passed != nil && counts.Passed != *e.Passed {
		diffs = append(diffs, fmt.Sprintf("passed = %d, want %d", counts.Passed, *e.Passed))
	}
	if e.Total != nil && counts.Total != *e.Total {
		diffs = append(diffs, fmt.Sprintf("total = %d, want %d", counts.Total, *e.Total))
	}
	return diffs
}

// LoadSuite loads all cases from <root>/<runner>/*.json in file name order.
func LoadSuite(root, runner string) ([]Case, error) {
	files, err := filepath.Glob(filepath.Join(root, runner, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	cases := make([]Case, 0, len(files))
	for _, f := range files {
		tc, err := LoadCase(f)
		if err != nil {
			return nil, err
		}
		tc.Runner = runner
		cases = append(cases, *tc)
	}
	return cases, nil
}

// LoadCase loads a single case from a JSON file.
func LoadCase(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tc Case
	if err := json.Unmarshal(data, &tc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if tc.Expect.Status == "" {
		return nil, fmt.Errorf("%s: expect.status is required", path)
	}

	tc.Name = strings.TrimSuffix(filepath.Base(path), ".json")
	return &tc, nil
}

// LoadAll loads every suite under root, keyed by runner.
func LoadAll(root string) (map[string][]Case, error) {
	runners, err := ListRunners(root)
	if err != nil {
		return nil, err
	}

	suites := make(map[string][]Case, len(runners))
	for _, runner := range runners {
		cases, err := LoadSuite(root, runner)
		if err != nil {
			return nil, err
		}
		if len(cases) > 0 {
			suites[runner] = cases
		}
	}
	return suites, nil
}

// ListRunners returns the suite directory names under root. A missing root
// has no suites.
func ListRunners(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runners []string
	for _, entry := range entries {
		if entry.IsDir() {
			runners = append(runners, entry.Name())
		}
	}
	return runners, nil
}

// FindFixturesRoot walks up from the working directory to the first directory
// containing FixturesDir and returns the fixtures path.
func FindFixturesRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindFixturesRootFrom(cwd)
}

// FindFixturesRootFrom is FindFixturesRoot starting at startDir.
func FindFixturesRootFrom(startDir string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, filepath.FromSlash(FixturesDir))
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", &FixturesNotFoundError{StartDir: startDir}
}

// FixturesNotFoundError indicates no FixturesDir was found above StartDir.
type FixturesNotFoundError struct {
	StartDir string
}

func (e *FixturesNotFoundError) Error() string {
	return FixturesDir + " not found (searched from " + e.StartDir + ")"
}

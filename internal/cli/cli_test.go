package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	gtmerrors "github.com/AndreyAkinshin/gtm/internal/errors"
	"github.com/AndreyAkinshin/gtm/internal/output"
)

type result struct {
	code   int
	stdout string
	stderr string
}

// runCLI runs the CLI with captured output and no color.
func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	w := output.NewWithWriters(&stdout, &stderr, false)
	code := run(context.Background(), args, w, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fixture runners are shell scripts")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// workspace creates a gtm workspace whose runners are sh scripts:
// app has two unittest files (one failing) and one behave feature.
func workspace(t *testing.T) (root, configPath string) {
	t.Helper()
	root = t.TempDir()
	app := filepath.Join(root, "app")

	writeFile(t, filepath.Join(app, "pass.sh"), "echo 'Ran 1 test in 0.001s' >&2\necho >&2\necho OK >&2\n")
	writeFile(t, filepath.Join(app, "fail.sh"), "echo 'Ran 2 tests in 0.001s' >&2\necho >&2\necho 'FAILED (failures=1)' >&2\nexit 1\n")
	writeFile(t, filepath.Join(app, "login.sh"), strings.Join([]string{
		"echo 'Feature: Login'",
		"echo",
		"echo '1 feature passed, 0 failed, 0 skipped'",
		"echo '2 scenarios passed, 0 failed, 0 skipped'",
		"echo '6 steps passed, 0 failed, 0 skipped, 0 undefined'",
		"echo 'Took 0m0.010s'",
	}, "\n")+"\n")
	writeFile(t, filepath.Join(app, "reports", "junit.xml"), "<ok/>")

	configPath = filepath.Join(root, ".gtm", "config.json")
	writeFile(t, configPath, `{
		"projects": [
			{
				"path": "app",
				"runners": [
					{"type": "unittest", "executable_path": "sh", "test_files": ["pass.sh", "fail.sh"]},
					{"type": "behave", "executable_path": "sh", "test_files": ["login.sh"]}
				],
				"evidence_collectors": ["reports"]
			}
		]
	}`)
	return root, configPath
}

func TestVersion(t *testing.T) {
	t.Parallel()

	r := runCLI(t, "", "version")
	if r.code != 0 || r.stdout != "gtm "+Version+"\n" {
		t.Errorf("version = %d %q", r.code, r.stdout)
	}
}

func TestVersionFlag(t *testing.T) {
	t.Parallel()

	r := runCLI(t, "", "--version")
	if r.code != 0 || !strings.Contains(r.stdout, "gtm version "+Version) {
		t.Errorf("--version = %d %q", r.code, r.stdout)
	}
}

// -v is --verbose; the run prints each runner command line to stderr.
func TestVerboseShortFlag(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)
	root, cfg := workspace(t)

	r := runCLI(t, "", "-v", "--config", cfg, "run", filepath.Join(root, "app")+"|unittest|pass.sh")
	if r.code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", r.code, r.stderr)
	}
	if !strings.Contains(r.stderr, "Running: ") {
		t.Errorf("verbose run printed no command line:\n%s", r.stderr)
	}
}

func TestGlobalFlags_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"quiet and verbose", []string{"-q", "-v", "version"}, "mutually exclusive"},
		{"unknown flag", []string{"--docker", "version"}, "flag provided but not defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := runCLI(t, "", tt.args...)
			if r.code != gtmerrors.ExitConfigError {
				t.Errorf("exit code = %d, want %d", r.code, gtmerrors.ExitConfigError)
			}
			if !strings.Contains(r.stderr, tt.want) {
				t.Errorf("stderr = %q, want it to contain %q", r.stderr, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	_, cfg := workspace(t)

	r := runCLI(t, "", "--config", cfg, "config", "validate")
	if r.code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", r.code, r.stderr)
	}
	for _, want := range []string{"Configuration is valid.", "Projects: 1", "Test files: 3", "Evidence root: disabled", "=== Projects ===", "unittest (2), behave (1)"} {
		if !strings.Contains(r.stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, r.stdout)
		}
	}
}

func TestConfigValidate_Invalid(t *testing.T) {
	t.Parallel()
	cfg := filepath.Join(t.TempDir(), "gtm.yaml")
	writeFile(t, cfg, "projects:\n  - path: a|b\n")

	r := runCLI(t, "", "--config", cfg, "config", "validate")
	if r.code != gtmerrors.ExitConfigError {
		t.Errorf("exit code = %d, want %d", r.code, gtmerrors.ExitConfigError)
	}
	if !strings.Contains(r.stderr, "reserved separator") {
		t.Errorf("stderr = %q", r.stderr)
	}
}

func TestConfigValidate_MissingFile(t *testing.T) {
	t.Parallel()

	r := runCLI(t, "", "--config", filepath.Join(t.TempDir(), "nope.json"), "config", "validate")
	if r.code != gtmerrors.ExitConfigError {
		t.Errorf("exit code = %d, want %d", r.code, gtmerrors.ExitConfigError)
	}
}

func TestTree(t *testing.T) {
	t.Parallel()
	root, cfg := workspace(t)

	r := runCLI(t, "", "--config", cfg, "tree", "--ids")
	if r.code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", r.code, r.stderr)
	}
	app := filepath.Join(root, "app")
	for _, want := range []string{"app", "Unittest", "Behave", "pass.sh", "[" + app + "|unittest|fail.sh]"} {
		if !strings.Contains(r.stdout, want) {
			t.Errorf("tree missing %q:\n%s", want, r.stdout)
		}
	}
}

func TestRun_All(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)
	root, cfg := workspace(t)
	app := filepath.Join(root, "app")

	r := runCLI(t, "", "--config", cfg, "run")
	if r.code != gtmerrors.ExitRuntimeError {
		t.Fatalf("exit code = %d, want 1\nstdout:\n%s\nstderr:\n%s", r.code, r.stdout, r.stderr)
	}
	if !strings.Contains(r.stderr, "x "+app+"|unittest|fail.sh") || !strings.Contains(r.stderr, "FAILED (failures=1)") {
		t.Errorf("failed leaf not reported:\n%s", r.stderr)
	}
	for _, want := range []string{"+ " + app + "|unittest|pass.sh", "+ " + app + "|behave|login.sh", "Batch", "1 of 3 tests failed.", "  - " + app + "|unittest|fail.sh"} {
		if !strings.Contains(r.stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, r.stdout)
		}
	}
}

func TestRun_SelectionWithEvidenceAndMetrics(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)
	root, cfg := workspace(t)
	app := filepath.Join(root, "app")
	evidenceRoot := filepath.Join(t.TempDir(), "evidence")
	metricsFile := filepath.Join(t.TempDir(), "gtm.prom")

	r := runCLI(t, "", "--config", cfg, "run",
		"--evidence-root", evidenceRoot,
		"--metrics-file", metricsFile,
		app+"|behave", app+"|unittest|pass.sh")
	if r.code != 0 {
		t.Fatalf("exit code = %d\nstdout:\n%s\nstderr:\n%s", r.code, r.stdout, r.stderr)
	}
	if !strings.Contains(r.stdout, "All 2 tests passed.") {
		t.Errorf("stdout:\n%s", r.stdout)
	}
	if !strings.Contains(r.stdout, "Evidence zipped: ") {
		t.Errorf("no archive notification:\n%s", r.stdout)
	}
	if !strings.Contains(r.stdout, "Metrics written to "+metricsFile) {
		t.Errorf("no metrics notification:\n%s", r.stdout)
	}

	if data, err := os.ReadFile(filepath.Join(evidenceRoot, "app", "junit.xml")); err != nil || string(data) != "<ok/>" {
		t.Errorf("evidence copy = %q, %v", data, err)
	}
	zips, err := filepath.Glob(filepath.Join(evidenceRoot, "zips", "app_*.zip"))
	if err != nil || len(zips) == 0 {
		t.Errorf("no zip archives written: %v", err)
	}

	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(data), `gtm_leaves_total{runner="behave",status="passed"} 1`) {
		t.Errorf("metrics:\n%s", data)
	}
}

func TestRun_Quiet(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)
	root, cfg := workspace(t)

	r := runCLI(t, "", "-q", "--config", cfg, "run", filepath.Join(root, "app")+"|unittest|pass.sh")
	if r.code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", r.code, r.stderr)
	}
	if strings.Contains(r.stdout, "Batch") || strings.Contains(r.stdout, "pass.sh") {
		t.Errorf("quiet run printed progress or table:\n%s", r.stdout)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()
	root, cfg := workspace(t)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"malformed id", []string{"run", "a|b|c|d"}, gtmerrors.ExitConfigError},
		{"unknown project", []string{"run", filepath.Join(root, "nope")}, gtmerrors.ExitConfigError},
		{"workers out of range", []string{"run", "--workers", "0"}, gtmerrors.ExitConfigError},
		{"empty group", []string{"run", filepath.Join(root, "app") + "|unittest|"}, gtmerrors.ExitConfigError},
		{"evidence root is a file", []string{"run", "--evidence-root", filepath.Join(root, "app", "pass.sh")}, gtmerrors.ExitEnvironmentError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := runCLI(t, "", append([]string{"--config", cfg}, tt.args...)...)
			if r.code != tt.code {
				t.Errorf("exit code = %d, want %d\nstderr: %s", r.code, tt.code, r.stderr)
			}
		})
	}
}

func TestRun_UnresolvableLeaf(t *testing.T) {
	t.Parallel()
	_, cfg := workspace(t)

	r := runCLI(t, "", "--config", cfg, "run", "/elsewhere|unittest|x.py")
	if r.code != gtmerrors.ExitRuntimeError {
		t.Errorf("exit code = %d, want 1", r.code)
	}
	if !strings.Contains(r.stderr, "no configured project matches path") {
		t.Errorf("stderr = %q", r.stderr)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		args   []string
		stdin  string
		code   int
		stdout string
	}{
		{"unittest ok", []string{"parse", "--runner", "python"}, "Ran 3 tests in 0.1s\n\nOK\n", 0, "PASSED"},
		{"unittest failed", []string{"parse", "-r", "unittest"}, "Ran 2 tests\n\nFAILED (failures=1)\n", 1, "FAILED: FAILED (failures=1)"},
		{"behave skipped", []string{"parse", "-r", "behave"}, "Feature: X\n\n0 features passed, 0 failed, 1 skipped\n0 scenarios passed\n0 steps passed\nTook 0m0s\n", 1, "FAILED: 0 features passed, 0 failed, 1 skipped"},
		{"behave scan", []string{"parse", "-r", "behave", "--summary-scan"}, "1 feature passed, 0 failed, 0 skipped\nTook 0m0s\n", 0, "PASSED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := runCLI(t, tt.stdin, tt.args...)
			if r.code != tt.code {
				t.Errorf("exit code = %d, want %d\nstderr: %s", r.code, tt.code, r.stderr)
			}
			if !strings.Contains(r.stdout, tt.stdout) {
				t.Errorf("stdout missing %q:\n%s", tt.stdout, r.stdout)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown runner", []string{"parse", "-r", "jest"}, gtmerrors.ExitConfigError},
		{"missing runner flag", []string{"parse"}, gtmerrors.ExitConfigError},
		{"missing file", []string{"parse", "-r", "unittest", "/nonexistent/out.txt"}, gtmerrors.ExitRuntimeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r := runCLI(t, "", tt.args...); r.code != tt.code {
				t.Errorf("exit code = %d, want %d\nstderr: %s", r.code, tt.code, r.stderr)
			}
		})
	}
}

func TestParse_FromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.txt")
	writeFile(t, path, "Ran 1 test\n\nOK (skipped=1)\n")

	r := runCLI(t, "", "parse", "-r", "unittest", path)
	if r.code != 0 {
		t.Errorf("exit code = %d, stderr = %s", r.code, r.stderr)
	}
	if !strings.Contains(r.stdout, "Unittest Summary") {
		t.Errorf("stdout:\n%s", r.stdout)
	}
}

// Package dispatch maps leaf ids to configured runners, invokes them and
// parses their output into verdicts.
package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/AndreyAkinshin/gtm/internal/config"
	gtmerrors "github.com/AndreyAkinshin/gtm/internal/errors"
	"github.com/AndreyAkinshin/gtm/internal/process"
	"github.com/AndreyAkinshin/gtm/internal/testparser"
	"github.com/AndreyAkinshin/gtm/internal/tree"
)

// Invoker runs a runner command. process.Run is the production implementation.
type Invoker interface {
	Invoke(ctx context.Context, cmd process.Command) (process.Output, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, cmd process.Command) (process.Output, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, cmd process.Command) (process.Output, error) {
	return f(ctx, cmd)
}

// Logger receives verbose diagnostics.
type Logger interface {
	Debug(format string, args ...interface{})
}

// Dispatcher resolves and executes leaves against one configuration snapshot.
type Dispatcher struct {
	snapshot *config.Snapshot
	invoker  Invoker
	logger   Logger
}

// New creates a dispatcher that runs commands with process.Run.
func New(snapshot *config.Snapshot) *Dispatcher {
	if snapshot == nil {
		snapshot = config.NewSnapshot(nil)
	}
	return &Dispatcher{
		snapshot: snapshot,
		invoker:  InvokerFunc(process.Run),
	}
}

// SetInvoker replaces the process boundary.
func (d *Dispatcher) SetInvoker(inv Invoker) {
	d.invoker = inv
}

// SetLogger enables command line logging.
func (d *Dispatcher) SetLogger(l Logger) {
	d.logger = l
}

// Snapshot returns the configuration the dispatcher reads.
func (d *Dispatcher) Snapshot() *config.Snapshot {
	return d.snapshot
}

// Resolve finds the project and runner a leaf id refers to. All failures are
// resolution errors carrying the leaf id.
func (d *Dispatcher) Resolve(leafID string) (config.ProjectConfig, config.RunnerSpec, error) {
	id, err := tree.ParseID(leafID)
	if err != nil {
		var idErr *tree.IDError
		if errors.As(err, &idErr) && errors.Is(err, tree.ErrUnknownKind) {
			return config.ProjectConfig{}, config.RunnerSpec{}, gtmerrors.UnsupportedRunnerKind(leafID, idErr.Segment)
		}
		return config.ProjectConfig{}, config.RunnerSpec{}, gtmerrors.MalformedID(leafID, err)
	}
	if !id.IsLeaf() {
		return config.ProjectConfig{}, config.RunnerSpec{}, gtmerrors.MalformedID(leafID, errors.New("id does not name a test file"))
	}

	if id.Project == "" {
		return config.ProjectConfig{}, config.RunnerSpec{}, gtmerrors.UnresolvedProject(leafID, id.Project)
	}
	project, ok := d.snapshot.Project(id.Project)
	if !ok {
		return config.ProjectConfig{}, config.RunnerSpec{}, gtmerrors.UnresolvedProject(leafID, id.Project)
	}

	runner, ok := project.Runner(id.Kind)
	if !ok {
		return config.ProjectConfig{}, config.RunnerSpec{}, gtmerrors.UnresolvedRunner(leafID, project.Path, string(id.Kind))
	}
	if runner.ExecutablePath == "" {
		return config.ProjectConfig{}, config.RunnerSpec{}, gtmerrors.MissingExecutable(leafID, project.Path, string(id.Kind))
	}

	return project, runner, nil
}

// Command builds the invocation for one test file: the executable, the
// runner's extra args, then the file, run from the project directory.
func Command(project config.ProjectConfig, runner config.RunnerSpec, file string) process.Command {
	exe := runner.ExecutablePath
	if runner.UseProjectRelativePath {
		exe = filepath.Join(project.Path, exe)
	}

	args := make([]string, 0, len(runner.Args)+1)
	args = append(args, runner.Args...)
	args = append(args, file)

	return process.Command{
		Executable: exe,
		Args:       args,
		Dir:        project.Path,
		Env:        runner.Env,
	}
}

// Invoke runs the leaf's command. The exit status is not interpreted here; a
// non-zero exit comes back as a *process.ExitError that still carries output.
func (d *Dispatcher) Invoke(ctx context.Context, project config.ProjectConfig, runner config.RunnerSpec, leafID string) (process.Output, error) {
	id, err := tree.ParseID(leafID)
	if err != nil {
		return process.Output{}, gtmerrors.MalformedID(leafID, err)
	}

	cmd := Command(project, runner, id.File)
	if d.logger != nil {
		d.logger.Debug("Running: %s (in %s)", cmd.Line(), cmd.Dir)
	}
	return d.invoker.Invoke(ctx, cmd)
}

// Execute resolves, invokes and parses one leaf. It always returns a verdict:
// resolution problems and invocation failures without captured output become
// failed verdicts whose message is the error text.
func (d *Dispatcher) Execute(ctx context.Context, leafID string) testparser.Verdict {
	project, runner, err := d.Resolve(leafID)
	if err != nil {
		return testparser.Fail(err.Error())
	}

	parser, err := testparser.ParserFor(runner)
	if err != nil {
		return testparser.Fail(gtmerrors.UnsupportedRunnerKind(leafID, string(runner.Kind)).Error())
	}

	out, err := d.Invoke(ctx, project, runner, leafID)
	if err != nil {
		captured, ok := process.OutputOf(err)
		if !ok || captured.Empty() {
			return testparser.Fail(err.Error())
		}
		// behave reports only on stdout; without it stderr holds the real
		// diagnostic, such as a missing executable.
		if runner.Kind == config.KindBehave && captured.Stdout == "" {
			return testparser.Fail(invocationMessage(err, captured.Stderr))
		}
		out = captured
	}

	return parser.Parse(out)
}

func invocationMessage(err error, stderr string) string {
	if stderr = strings.TrimSpace(stderr); stderr != "" {
		return err.Error() + ": " + stderr
	}
	return err.Error()
}

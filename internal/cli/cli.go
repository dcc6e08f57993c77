// Package cli provides the gtm command-line interface.
package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	gtmerrors "github.com/AndreyAkinshin/gtm/internal/errors"
	"github.com/AndreyAkinshin/gtm/internal/output"
)

// Version is set at build time.
var Version = "dev"

// Global flag names.
const (
	flagQuiet   = "quiet"
	flagVerbose = "verbose"
	flagConfig  = "config"
)

// -v belongs to --verbose, so the built-in version flag gets no short alias.
func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:               "version",
		Usage:              "print the version",
		DisableDefaultText: true,
	}
}

// Run executes the CLI with the given arguments and returns an exit code.
func Run(args []string) int {
	return run(context.Background(), args, output.New(), os.Stdin, os.Stdout, os.Stderr)
}

// run is Run with injectable streams. w renders everything gtm prints itself;
// stdout and stderr receive urfave's help and usage text.
func run(ctx context.Context, args []string, w *output.Writer, stdin io.Reader, stdout, stderr io.Writer) int {
	app := newApp(w)
	app.Reader = stdin
	app.Writer = stdout
	app.ErrWriter = stderr

	err := app.RunContext(ctx, append([]string{app.Name}, args...))
	if err == nil {
		return gtmerrors.ExitSuccess
	}
	if msg := err.Error(); msg != "" {
		w.ErrorPrefix("%s", msg)
	}
	return exitCode(err)
}

func newApp(w *output.Writer) *cli.App {
	return &cli.App{
		Name:                 "gtm",
		Usage:                "run unittest and behave suites across projects and collect evidence",
		Version:              Version,
		HideHelpCommand:      true,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagQuiet,
				Aliases: []string{"q"},
				Usage:   "Minimal output (errors and failed tests only)",
			},
			&cli.BoolFlag{
				Name:    flagVerbose,
				Aliases: []string{"v"},
				Usage:   "Print runner command lines",
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				EnvVars: []string{"GTM_CONFIG"},
				Usage:   "Path to the config file (default: nearest .gtm/config.*)",
			},
		},
		Before: func(c *cli.Context) error {
			quiet, verbose := c.Bool(flagQuiet), c.Bool(flagVerbose)
			if quiet && verbose {
				return gtmerrors.Config("--quiet and --verbose are mutually exclusive")
			}
			w.SetQuiet(quiet)
			w.SetVerbose(verbose)
			return nil
		},
		Commands: []*cli.Command{
			treeCommand(w),
			runCommand(w),
			configCommand(w),
			parseCommand(w),
			versionCommand(w),
		},
		// Exit codes are mapped by run; urfave must not call os.Exit.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// exitCode maps an error to a process exit code. Errors that carry no code
// come from flag parsing and are usage errors.
func exitCode(err error) int {
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return gtmerrors.ExitConfigError
}

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/AndreyAkinshin/gtm/internal/config"
	gtmerrors "github.com/AndreyAkinshin/gtm/internal/errors"
	"github.com/AndreyAkinshin/gtm/internal/output"
	"github.com/AndreyAkinshin/gtm/internal/process"
	"github.com/AndreyAkinshin/gtm/internal/testparser"
)

func parseCommand(w *output.Writer) *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Decide a verdict from saved runner output",
		ArgsUsage: "[file|-]",
		Description: "Reads output captured from a runner (stdin when no file is given) and\n" +
			"prints the verdict gtm would record. unittest output is read as stderr,\n" +
			"behave output as stdout.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "runner",
				Aliases:  []string{"r"},
				Required: true,
				Usage:    "Runner kind: unittest or behave",
			},
			&cli.BoolFlag{
				Name:  "summary-scan",
				Usage: "Search behave output backwards for the summary line",
			},
		},
		Action: func(c *cli.Context) error {
			return cmdParse(c, w)
		},
	}
}

func cmdParse(c *cli.Context, w *output.Writer) error {
	kind, ok := config.ParseRunnerKind(c.String("runner"))
	if !ok {
		return gtmerrors.Configf("unknown runner kind %q (valid: unittest, behave)", c.String("runner"))
	}

	data, err := readInput(c)
	if err != nil {
		return err
	}

	parser, err := testparser.ParserFor(config.RunnerSpec{Kind: kind, SummaryScan: c.Bool("summary-scan")})
	if err != nil {
		return gtmerrors.Configf("%v", err)
	}

	var out process.Output
	if kind == config.KindBehave {
		out.Stdout = string(data)
	} else {
		out.Stderr = string(data)
	}

	v := parser.Parse(out)
	printVerdict(w, parser.Name(), v)
	if !v.Passed() {
		return cli.Exit("", gtmerrors.ExitRuntimeError)
	}
	return nil
}

func readInput(c *cli.Context) ([]byte, error) {
	var input io.Reader = c.App.Reader
	if path := c.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, gtmerrors.Wrap(err, err.Error())
		}
		defer func() { _ = f.Close() }()
		input = f
	}
	data, err := io.ReadAll(input)
	if err != nil {
		return nil, gtmerrors.Wrap(err, fmt.Sprintf("failed to read input: %v", err))
	}
	return data, nil
}

// printVerdict prints the verdict with any counts the parser extracted.
func printVerdict(w *output.Writer, parserName string, v testparser.Verdict) {
	w.SummaryHeader(cases.Title(language.English).String(parserName) + " Summary")

	if c := v.Counts; c != nil && c.Parsed {
		w.SummaryPassed("Passed", fmt.Sprintf("%d", c.Passed))
		if c.Failed > 0 {
			w.SummaryFailed("Failed", fmt.Sprintf("%d", c.Failed))
		}
		if c.Errors > 0 {
			w.SummaryFailed("Errors", fmt.Sprintf("%d", c.Errors))
		}
		if c.Skipped > 0 {
			w.SummaryItem("Skipped", fmt.Sprintf("%d", c.Skipped))
		}
		w.SummaryItem("Total", fmt.Sprintf("%d", c.Total))

		if len(c.FailedTests) > 0 {
			w.Println("")
			for _, ft := range c.FailedTests {
				w.SummaryFailed("  "+ft.Name, ft.Reason)
			}
		}
	}

	if v.Passed() {
		w.FinalSuccess("PASSED")
	} else {
		w.FinalFailure("FAILED: %s", v.Message)
	}
}

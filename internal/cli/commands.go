package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/AndreyAkinshin/gtm/internal/config"
	"github.com/AndreyAkinshin/gtm/internal/dispatch"
	gtmerrors "github.com/AndreyAkinshin/gtm/internal/errors"
	"github.com/AndreyAkinshin/gtm/internal/evidence"
	"github.com/AndreyAkinshin/gtm/internal/metrics"
	"github.com/AndreyAkinshin/gtm/internal/output"
	"github.com/AndreyAkinshin/gtm/internal/project"
	"github.com/AndreyAkinshin/gtm/internal/runner"
	"github.com/AndreyAkinshin/gtm/internal/tree"
)

// loadProject loads the configuration named by --config, or the nearest
// .gtm/config.* above the working directory. Warnings are printed; every
// failure is a configuration error.
func loadProject(c *cli.Context, w *output.Writer) (*project.Project, error) {
	var (
		proj *project.Project
		err  error
	)
	if path := c.String(flagConfig); path != "" {
		proj, err = project.LoadFile(path)
	} else {
		proj, err = project.LoadProject()
	}
	if err != nil {
		if errors.Is(err, project.ErrNoProjectRoot) {
			w.Hint("Create %s/config.json in the workspace root or pass --config.", project.ConfigDirName)
		}
		return nil, gtmerrors.Configf("%v", err)
	}

	for _, msg := range proj.Warnings {
		w.Warning("%s", msg)
	}
	return proj, nil
}

func treeCommand(w *output.Writer) *cli.Command {
	return &cli.Command{
		Name:  "tree",
		Usage: "Print the project, runner and test file tree",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "ids", Usage: "Show node ids next to labels"},
		},
		Action: func(c *cli.Context) error {
			proj, err := loadProject(c, w)
			if err != nil {
				return err
			}

			root := tree.Build(proj.Config.Projects)
			if len(root.Children) == 0 {
				w.Info("No projects configured in %s", proj.ConfigPath)
				return nil
			}
			w.Tree(treeItems(root.Children, c.Bool("ids")))
			return nil
		},
	}
}

func treeItems(nodes []*tree.Node, withIDs bool) []output.TreeItem {
	items := make([]output.TreeItem, 0, len(nodes))
	for _, n := range nodes {
		label := n.Label
		if label == "" {
			label = "(no path)"
		}
		if withIDs {
			label = fmt.Sprintf("%s  [%s]", label, n.ID)
		}
		items = append(items, output.TreeItem{Label: label, Children: treeItems(n.Children, withIDs)})
	}
	return items
}

func runCommand(w *output.Writer) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run test leaves and report verdicts",
		ArgsUsage: "[node-id...]",
		Description: "Runs the given nodes, or every test file when none are given. Project and\n" +
			"runner group ids expand to their test files.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "parallel",
				Aliases: []string{"p"},
				Usage:   "Run different projects concurrently",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent projects in parallel mode (default: " + runner.ParallelEnvVar + " or CPU count)",
			},
			&cli.StringFlag{
				Name:  "evidence-root",
				Usage: "Override evidence_destination_root",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "Write prometheus metrics in textfile format after the batch",
			},
			&cli.BoolFlag{
				Name:  "summary-scan",
				Usage: "Search behave output backwards for the summary line",
			},
		},
		Action: func(c *cli.Context) error {
			return cmdRun(c, w)
		},
	}
}

func cmdRun(c *cli.Context, w *output.Writer) error {
	workers := c.Int("workers")
	if c.IsSet("workers") && !runner.ValidWorkers(workers) {
		return gtmerrors.Configf("--workers=%d out of range [1-256]", workers)
	}

	proj, err := loadProject(c, w)
	if err != nil {
		return err
	}
	cfg := proj.Config
	if root := c.String("evidence-root"); root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return gtmerrors.Configf("invalid --evidence-root: %v", err)
		}
		cfg.EvidenceDestinationRoot = abs
	}
	if c.Bool("summary-scan") {
		enableSummaryScan(cfg)
	}

	snap := config.NewSnapshot(cfg)
	if root := snap.EvidenceDestinationRoot(); root != "" {
		if info, err := os.Stat(root); err == nil && !info.IsDir() {
			return gtmerrors.Environment(fmt.Sprintf("evidence root %s is not a directory", root))
		}
	}
	d := dispatch.New(snap)
	d.SetLogger(w)

	root := tree.Build(snap.Projects())
	selection, err := runner.Select(root, c.Args().Slice())
	if err != nil {
		return gtmerrors.Configf("%v", err)
	}

	r := runner.New(d, runner.Options{Parallel: c.Bool("parallel"), Workers: workers})
	archiver := evidence.NewArchiver(snap.EvidenceDestinationRoot(), w)
	r.SetArchiver(archiver)

	var m *metrics.Metrics
	if c.String("metrics-file") != "" {
		m = metrics.New()
		r.SetRecorder(m)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	res, batchErr := streamBatch(ctx, w, r, root, selection)

	if m != nil {
		if err := m.WriteTextfile(c.String("metrics-file")); err != nil {
			w.Warning("failed to write metrics: %v", err)
		} else if !c.Bool(flagQuiet) {
			w.Success("Metrics written to %s", c.String("metrics-file"))
		}
	}

	if res == nil {
		return batchErr
	}
	if !c.Bool(flagQuiet) {
		printResult(w, res)
	}
	printFinal(w, res)

	if batchErr != nil {
		return batchErr
	}
	if !res.Passed() {
		return cli.Exit("", gtmerrors.ExitRuntimeError)
	}
	return nil
}

func enableSummaryScan(cfg *config.Config) {
	for i := range cfg.Projects {
		for j := range cfg.Projects[i].Runners {
			if cfg.Projects[i].Runners[j].Kind == config.KindBehave {
				cfg.Projects[i].Runners[j].SummaryScan = true
			}
		}
	}
}

// streamBatch prints progress as leaves run and returns the end event's result.
func streamBatch(ctx context.Context, w *output.Writer, r *runner.Runner, root *tree.Node, selection []*tree.Node) (*runner.Result, error) {
	for e := range r.Stream(ctx, root, selection) {
		switch e.Type {
		case runner.EventStarted:
			w.LeafStarted(e.LeafID)
		case runner.EventPassed:
			w.LeafPassed(e.LeafID, e.Duration)
		case runner.EventFailed:
			w.LeafFailed(e.LeafID, e.Verdict.Message, e.Duration)
		case runner.EventEnd:
			return e.Result, e.Err
		}
	}
	return nil, gtmerrors.Batch("batch ended without a result")
}

func printResult(w *output.Writer, res *runner.Result) {
	rows := make([][]string, 0, len(res.Order))
	for _, id := range res.Order {
		v := res.Verdicts[id]
		rows = append(rows, []string{id, string(v.Status), output.FormatDuration(res.Durations[id]), v.Message})
	}
	passed, failed := res.Counts()
	footer := []string{"Total", strconv.Itoa(len(res.Order)), "", fmt.Sprintf("%d passed, %d failed", passed, failed)}
	w.ResultTable("Batch "+res.BatchID, []string{"Leaf", "Status", "Duration", "Message"}, rows, footer, res.Passed())
}

func printFinal(w *output.Writer, res *runner.Result) {
	passed, failed := res.Counts()
	if failed == 0 {
		w.FinalSuccess("All %d tests passed.", passed)
		return
	}
	w.FinalFailure("%d of %d tests failed.", failed, passed+failed)
	w.List(res.Failed())
}

func configCommand(w *output.Writer) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration utilities",
		Subcommands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Validate the configuration and print warnings",
				Action: func(c *cli.Context) error {
					return cmdConfigValidate(c, w)
				},
			},
		},
	}
}

func cmdConfigValidate(c *cli.Context, w *output.Writer) error {
	proj, err := loadProject(c, w)
	if err != nil {
		return err
	}

	root := tree.Build(proj.Config.Projects)
	evidenceRoot := proj.Config.EvidenceDestinationRoot
	if evidenceRoot == "" {
		evidenceRoot = "disabled"
	}

	w.ValidationSuccess("Configuration is valid.")
	w.SummaryItem("Config", proj.ConfigPath)
	w.SummaryItem("Projects", strconv.Itoa(len(proj.Config.Projects)))
	w.SummaryItem("Test files", strconv.Itoa(len(root.Leaves())))
	w.SummaryItem("Evidence root", evidenceRoot)
	if len(proj.Warnings) > 0 {
		w.SummaryItem("Warnings", strconv.Itoa(len(proj.Warnings)))
	}

	if c.Bool(flagQuiet) || len(proj.Config.Projects) == 0 {
		return nil
	}
	w.Section("Projects")
	w.Table([]string{"Project", "Path", "Runners", "Collectors"}, projectRows(proj.Config.Projects))
	return nil
}

func projectRows(projects []config.ProjectConfig) [][]string {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		runners := make([]string, 0, len(p.Runners))
		for _, r := range p.Runners {
			runners = append(runners, fmt.Sprintf("%s (%d)", r.Kind, len(r.TestFiles)))
		}
		rows = append(rows, []string{p.Label(), p.Path, strings.Join(runners, ", "), strings.Join(p.EvidenceCollectors, ", ")})
	}
	return rows
}

func versionCommand(w *output.Writer) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(*cli.Context) error {
			w.Println("gtm %s", Version)
			return nil
		},
	}
}

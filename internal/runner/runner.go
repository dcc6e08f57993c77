// Package runner executes batches of test leaves and reports their verdicts.
package runner

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/AndreyAkinshin/gtm/internal/config"
	gtmerrors "github.com/AndreyAkinshin/gtm/internal/errors"
	"github.com/AndreyAkinshin/gtm/internal/metrics"
	"github.com/AndreyAkinshin/gtm/internal/output"
	"github.com/AndreyAkinshin/gtm/internal/testparser"
	"github.com/AndreyAkinshin/gtm/internal/tree"
)

var out = output.New()

const (
	// ParallelEnvVar sets the number of projects run at once in parallel mode.
	ParallelEnvVar = "GTM_PARALLEL"

	// minParallelWorkers keeps the pool usable even if runtime.NumCPU()
	// reports 0 in a restricted container.
	minParallelWorkers = 1

	// maxParallelWorkers caps GTM_PARALLEL. Leaves are subprocesses, so more
	// workers than this only adds scheduler and memory pressure.
	maxParallelWorkers = 256

	// NotRunMessage is the verdict message of leaves skipped by cancellation.
	NotRunMessage = "not run: batch canceled"

	streamBuffer = 64
)

// Dispatcher executes single leaves. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Execute(ctx context.Context, leafID string) testparser.Verdict
	Snapshot() *config.Snapshot
}

// Archiver captures evidence after a leaf. *evidence.Archiver implements it.
type Archiver interface {
	Enabled() bool
	Archive(project config.ProjectConfig) error
}

// Options configures batch execution.
type Options struct {
	// Parallel runs different projects concurrently. Leaves of one project
	// always run one after another in selection order.
	Parallel bool
	// Workers bounds the number of concurrent projects. Zero reads
	// GTM_PARALLEL and falls back to the CPU count.
	Workers int
}

// EventType identifies a batch progress event.
type EventType string

const (
	EventStarted EventType = "started"
	EventPassed  EventType = "passed"
	EventFailed  EventType = "failed"
	EventEnd     EventType = "end"
)

// Event reports batch progress. End is always the last event of a stream.
type Event struct {
	Type     EventType
	BatchID  string
	LeafID   string
	Verdict  testparser.Verdict // passed and failed only
	Duration time.Duration
	Result   *Result // end only
	Err      error   // end only
}

// Result holds the verdicts of one batch.
type Result struct {
	BatchID   string
	Verdicts  map[string]testparser.Verdict
	Durations map[string]time.Duration
	// Order lists leaf ids in expanded selection order.
	Order []string

	mu sync.Mutex
}

func newResult(batchID string, order []string) *Result {
	return &Result{
		BatchID:   batchID,
		Verdicts:  make(map[string]testparser.Verdict, len(order)),
		Durations: make(map[string]time.Duration, len(order)),
		Order:     order,
	}
}

func (res *Result) record(leafID string, v testparser.Verdict, d time.Duration) {
	res.mu.Lock()
	defer res.mu.Unlock()
	res.Verdicts[leafID] = v
	res.Durations[leafID] = d
}

// Passed reports whether every leaf passed.
func (res *Result) Passed() bool {
	_, failed := res.Counts()
	return failed == 0
}

// Counts returns the number of passed and failed leaves.
func (res *Result) Counts() (passed, failed int) {
	for _, id := range res.Order {
		if v, ok := res.Verdicts[id]; ok && v.Passed() {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Failed returns the ids of failed leaves in order.
func (res *Result) Failed() []string {
	var ids []string
	for _, id := range res.Order {
		if v := res.Verdicts[id]; !v.Passed() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Runner executes batches against one dispatcher.
type Runner struct {
	dispatcher Dispatcher
	archiver   Archiver
	recorder   metrics.Recorder
	opts       Options
}

// New creates a Runner.
func New(d Dispatcher, opts Options) *Runner {
	return &Runner{
		dispatcher: d,
		recorder:   metrics.Nop{},
		opts:       opts,
	}
}

// SetArchiver enables evidence capture after each leaf.
func (r *Runner) SetArchiver(a Archiver) {
	r.archiver = a
}

// SetRecorder sets the metrics sink.
func (r *Runner) SetRecorder(rec metrics.Recorder) {
	if rec == nil {
		rec = metrics.Nop{}
	}
	r.recorder = rec
}

// Run executes the selection and returns every leaf's verdict. The only
// errors are batch-level: an empty expansion or cancellation.
func (r *Runner) Run(ctx context.Context, root *tree.Node, selection []*tree.Node) (*Result, error) {
	return r.run(ctx, uuid.New().String(), root, selection, func(Event) {})
}

// Stream runs the batch in the background and reports progress. The channel
// is closed after the end event and must be drained.
func (r *Runner) Stream(ctx context.Context, root *tree.Node, selection []*tree.Node) <-chan Event {
	ch := make(chan Event, streamBuffer)
	batchID := uuid.New().String()
	go func() {
		defer close(ch)
		res, err := r.run(ctx, batchID, root, selection, func(e Event) { ch <- e })
		ch <- Event{Type: EventEnd, BatchID: batchID, Result: res, Err: err}
	}()
	return ch
}

func (r *Runner) run(ctx context.Context, batchID string, root *tree.Node, selection []*tree.Node, emit func(Event)) (*Result, error) {
	leaves := Expand(root, selection)
	if len(leaves) == 0 {
		return nil, gtmerrors.Batch("nothing to run: the selection contains no test files")
	}

	res := newResult(batchID, leaves)
	groups := groupByProject(leaves)

	workers := r.workers()
	if !r.opts.Parallel || workers <= 1 || len(groups) <= 1 {
		for _, g := range groups {
			r.runGroup(ctx, res, g, emit)
		}
	} else {
		p := pool.New().WithMaxGoroutines(workers)
		for _, g := range groups {
			p.Go(func() {
				r.runGroup(ctx, res, g, emit)
			})
		}
		p.Wait()
	}

	r.recorder.BatchFinished(res.Passed())
	if err := ctx.Err(); err != nil {
		return res, gtmerrors.BatchCanceled(err)
	}
	return res, nil
}

// runGroup runs the leaves of one project strictly in order.
func (r *Runner) runGroup(ctx context.Context, res *Result, leafIDs []string, emit func(Event)) {
	for _, id := range leafIDs {
		if ctx.Err() != nil {
			// Every leaf gets a started/finished pair, even one that never runs.
			v := testparser.Fail(NotRunMessage)
			res.record(id, v, 0)
			emit(Event{Type: EventStarted, BatchID: res.BatchID, LeafID: id})
			emit(Event{Type: EventFailed, BatchID: res.BatchID, LeafID: id, Verdict: v})
			continue
		}
		r.runLeaf(ctx, res, id, emit)
	}
}

func (r *Runner) runLeaf(ctx context.Context, res *Result, leafID string, emit func(Event)) {
	emit(Event{Type: EventStarted, BatchID: res.BatchID, LeafID: leafID})

	start := time.Now()
	// A started runner process is never interrupted by cancellation.
	v := r.execute(context.WithoutCancel(ctx), leafID)
	d := time.Since(start)

	res.record(leafID, v, d)
	r.recorder.LeafFinished(kindOf(leafID), v.Passed(), d)

	typ := EventPassed
	if !v.Passed() {
		typ = EventFailed
	}
	emit(Event{Type: typ, BatchID: res.BatchID, LeafID: leafID, Verdict: v, Duration: d})

	r.archive(leafID)
}

// execute turns a panic anywhere below the dispatcher into a failed verdict.
func (r *Runner) execute(ctx context.Context, leafID string) (v testparser.Verdict) {
	defer func() {
		if p := recover(); p != nil {
			v = testparser.Fail(fmt.Sprintf("panic: %v", p))
		}
	}()
	return r.dispatcher.Execute(ctx, leafID)
}

// archive runs after the verdict is recorded; its outcome only reaches the
// notifier and metrics.
func (r *Runner) archive(leafID string) {
	if r.archiver == nil || !r.archiver.Enabled() {
		return
	}
	id, err := tree.ParseID(leafID)
	if err != nil {
		return
	}
	project, ok := r.dispatcher.Snapshot().Project(id.Project)
	if !ok || len(project.EvidenceCollectors) == 0 {
		return
	}
	r.recorder.ArchiveFinished(r.archiver.Archive(project))
}

func (r *Runner) workers() int {
	if r.opts.Workers > 0 {
		return r.opts.Workers
	}
	if !r.opts.Parallel {
		return 1
	}
	return getParallelWorkers()
}

// Expand turns a selection into leaf ids. An empty selection means the whole
// tree. Nodes whose id has no file component expand into their descendant
// leaves. Duplicates keep their first position.
func Expand(root *tree.Node, selection []*tree.Node) []string {
	if len(selection) == 0 {
		selection = []*tree.Node{root}
	}

	seen := make(map[string]bool)
	var ids []string
	add := func(n *tree.Node) {
		id := n.ID.String()
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, n := range selection {
		if n == nil {
			continue
		}
		if n.Kind == tree.KindLeaf || n.ID.IsLeaf() {
			add(n)
			continue
		}
		for _, leaf := range n.Leaves() {
			add(leaf)
		}
	}
	return ids
}

// Select maps node ids to nodes of root. Leaf ids missing from the tree are
// still selected so the batch reports why they cannot run.
func Select(root *tree.Node, ids []string) ([]*tree.Node, error) {
	nodes := make([]*tree.Node, 0, len(ids))
	for _, s := range ids {
		if n := root.Find(s); n != nil {
			nodes = append(nodes, n)
			continue
		}
		id, err := tree.ParseID(s)
		if err != nil {
			return nil, err
		}
		if !id.IsLeaf() {
			return nil, gtmerrors.NotFound("node", s)
		}
		nodes = append(nodes, &tree.Node{ID: id, Kind: tree.KindLeaf, Label: id.File})
	}
	return nodes, nil
}

// groupByProject splits leaf ids by project, keeping first-seen project order
// and leaf order within each project.
func groupByProject(ids []string) [][]string {
	index := make(map[string]int)
	var groups [][]string
	for _, id := range ids {
		key := projectOf(id)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], id)
	}
	return groups
}

func projectOf(leafID string) string {
	id, err := tree.ParseID(leafID)
	if err != nil {
		return leafID
	}
	return id.Project
}

func kindOf(leafID string) string {
	id, err := tree.ParseID(leafID)
	if err != nil {
		return ""
	}
	return string(id.Kind)
}

// defaultWorkerCount returns the default number of parallel workers based on CPU count.
func defaultWorkerCount() int {
	return max(minParallelWorkers, runtime.NumCPU())
}

// getParallelWorkers returns the number of parallel workers to use.
// Invalid GTM_PARALLEL values (non-numeric, <1, >256) log a warning
// and fall back to runtime.NumCPU().
func getParallelWorkers() int {
	env := os.Getenv(ParallelEnvVar)
	if env == "" {
		return defaultWorkerCount()
	}

	n, err := strconv.Atoi(env)
	if err != nil {
		out.Warning("invalid %s value %q (not a number), using default", ParallelEnvVar, env)
		return defaultWorkerCount()
	}

	if n < minParallelWorkers || n > maxParallelWorkers {
		out.Warning("%s=%d out of range [%d-%d], using default", ParallelEnvVar, n, minParallelWorkers, maxParallelWorkers)
		return defaultWorkerCount()
	}

	return n
}

// ValidWorkers reports whether n is an accepted worker count.
func ValidWorkers(n int) bool {
	return n >= minParallelWorkers && n <= maxParallelWorkers
}

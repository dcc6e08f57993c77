package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/AndreyAkinshin/gtm/internal/config"
	"github.com/AndreyAkinshin/gtm/internal/dispatch"
	gtmerrors "github.com/AndreyAkinshin/gtm/internal/errors"
	"github.com/AndreyAkinshin/gtm/internal/process"
	"github.com/AndreyAkinshin/gtm/internal/testing/mocks"
	"github.com/AndreyAkinshin/gtm/internal/testparser"
	"github.com/AndreyAkinshin/gtm/internal/tree"
)

const (
	leafA1     = "/work/a|unittest|test_1.py"
	leafA2     = "/work/a|unittest|test_2.py"
	leafALogin = "/work/a|behave|login.feature"
	leafB1     = "/work/b|unittest|test_b1.py"
	leafB2     = "/work/b|unittest|test_b2.py"
)

const behavePassed = "Feature: Login\n\n1 feature passed, 0 failed, 0 skipped\n2 scenarios passed, 0 failed, 0 skipped\n6 steps passed, 0 failed, 0 skipped, 0 undefined\nTook 0m0.010s\n"

func testConfig() *config.Config {
	return &config.Config{Projects: []config.ProjectConfig{
		{
			Path: "/work/a",
			Runners: []config.RunnerSpec{
				{Kind: config.KindUnittest, ExecutablePath: "python3", TestFiles: []string{"test_1.py", "test_2.py"}},
				{Kind: config.KindBehave, ExecutablePath: "behave", TestFiles: []string{"login.feature"}},
			},
			EvidenceCollectors: []string{"reports"},
		},
		{
			Path: "/work/b",
			Runners: []config.RunnerSpec{
				{Kind: config.KindUnittest, ExecutablePath: "python3", TestFiles: []string{"test_b1.py", "test_b2.py"}},
			},
		},
		{
			Path:    "/work/c",
			Runners: []config.RunnerSpec{{Kind: config.KindUnittest, ExecutablePath: "python3"}},
		},
	}}
}

// newTestRunner wires a real dispatcher to a fake process boundary whose
// default response is a passing unittest run.
func newTestRunner(opts Options) (*Runner, *mocks.Invoker, *tree.Node) {
	cfg := testConfig()
	inv := mocks.NewInvoker().
		WithFallback(mocks.Response{Output: process.Output{Stderr: "Ran 1 test in 0.001s\n\nOK\n"}}).
		WithStdout("login.feature", behavePassed)
	d := dispatch.New(config.NewSnapshot(cfg))
	d.SetInvoker(inv)
	return New(d, opts), inv, tree.Build(cfg.Projects)
}

func mustFind(t *testing.T, root *tree.Node, id string) *tree.Node {
	t.Helper()
	n := root.Find(id)
	if n == nil {
		t.Fatalf("node %q not found", id)
	}
	return n
}

type recordingArchiver struct {
	mu       sync.Mutex
	enabled  bool
	err      error
	projects []string
}

func (a *recordingArchiver) Enabled() bool { return a.enabled }

func (a *recordingArchiver) Archive(p config.ProjectConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.projects = append(a.projects, p.Path)
	return a.err
}

type recordingRecorder struct {
	mu            sync.Mutex
	leaves        map[string]int
	archiveErrors int
	archiveOK     int
	batches       []bool
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{leaves: make(map[string]int)}
}

func (r *recordingRecorder) LeafFinished(runner string, passed bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves[fmt.Sprintf("%s/%v", runner, passed)]++
}

func (r *recordingRecorder) ArchiveFinished(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.archiveErrors++
	} else {
		r.archiveOK++
	}
}

func (r *recordingRecorder) BatchFinished(passed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, passed)
}

func TestGetParallelWorkers_Default(t *testing.T) {
	t.Setenv(ParallelEnvVar, "")

	workers := getParallelWorkers()
	if workers < 1 {
		t.Errorf("getParallelWorkers() = %d, want >= 1", workers)
	}
}

func TestGetParallelWorkers_FromEnv(t *testing.T) {
	t.Setenv(ParallelEnvVar, "4")

	workers := getParallelWorkers()
	if workers != 4 {
		t.Errorf("getParallelWorkers() = %d, want 4", workers)
	}
}

func TestGetParallelWorkers_InvalidEnv(t *testing.T) {
	tests := []string{
		"invalid",
		"0",
		"-1",
		"257",
	}

	for _, val := range tests {
		t.Run(val, func(t *testing.T) {
			t.Setenv(ParallelEnvVar, val)

			workers := getParallelWorkers()
			// Should fall back to CPU count
			if workers < 1 {
				t.Errorf("getParallelWorkers() = %d, want >= 1", workers)
			}
		})
	}
}

func TestGetParallelWorkers_Boundaries(t *testing.T) {
	for _, n := range []int{1, 256} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			t.Setenv(ParallelEnvVar, fmt.Sprint(n))

			if workers := getParallelWorkers(); workers != n {
				t.Errorf("getParallelWorkers() = %d, want %d", workers, n)
			}
		})
	}
}

func TestValidWorkers(t *testing.T) {
	t.Parallel()

	for n, want := range map[int]bool{0: false, 1: true, 8: true, 256: true, 257: false} {
		if got := ValidWorkers(n); got != want {
			t.Errorf("ValidWorkers(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()
	root := tree.Build(testConfig().Projects)

	tests := []struct {
		name      string
		selection []string
		want      []string
	}{
		{"empty selection is whole tree", nil, []string{leafA1, leafA2, leafALogin, leafB1, leafB2}},
		{"project", []string{"/work/b"}, []string{leafB1, leafB2}},
		{"runner group", []string{"/work/a|behave"}, []string{leafALogin}},
		{"leaf", []string{leafA2}, []string{leafA2}},
		{"duplicates keep first position", []string{leafA2, "/work/a|unittest", leafA2}, []string{leafA2, leafA1}},
		{"group without files", []string{"/work/c"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sel []*tree.Node
			for _, id := range tt.selection {
				sel = append(sel, mustFind(t, root, id))
			}

			got := Expand(root, sel)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Expand() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()
	root := tree.Build(testConfig().Projects)

	nodes, err := Select(root, []string{"/work/a|behave", "/nope|unittest|x.py"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("Select() returned %d nodes, want 2", len(nodes))
	}
	if nodes[0].Kind != tree.KindRunnerGroup {
		t.Errorf("nodes[0].Kind = %v, want runnerGroup", nodes[0].Kind)
	}
	if nodes[1].Kind != tree.KindLeaf || nodes[1].ID.String() != "/nope|unittest|x.py" {
		t.Errorf("nodes[1] = %+v, want synthetic leaf", nodes[1])
	}

	if _, err := Select(root, []string{"/nope"}); !gtmerrors.IsKind(err, gtmerrors.KindNotFound) {
		t.Errorf("Select(unknown project) error = %v, want not found", err)
	}
	var idErr *tree.IDError
	if _, err := Select(root, []string{"a|b|c|d"}); !errors.As(err, &idErr) {
		t.Errorf("Select(malformed) error = %v, want *tree.IDError", err)
	}
}

func TestRun_AllLeavesGetVerdicts(t *testing.T) {
	t.Parallel()
	r, inv, root := newTestRunner(Options{})
	inv.WithStderr("test_2.py", "Ran 2 tests\n\nFAILED (failures=1)\n")

	unresolved := &tree.Node{ID: tree.LeafID("/nope", config.KindUnittest, "x.py"), Kind: tree.KindLeaf}
	sel := []*tree.Node{mustFind(t, root, leafA1), unresolved, mustFind(t, root, leafA2)}

	res, err := r.Run(context.Background(), root, sel)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantOrder := []string{leafA1, "/nope|unittest|x.py", leafA2}
	if strings.Join(res.Order, ",") != strings.Join(wantOrder, ",") {
		t.Errorf("Order = %v, want %v", res.Order, wantOrder)
	}
	if len(res.Verdicts) != 3 {
		t.Fatalf("verdicts = %d, want 3", len(res.Verdicts))
	}
	if !res.Verdicts[leafA1].Passed() {
		t.Errorf("%s = %+v, want passed", leafA1, res.Verdicts[leafA1])
	}
	if v := res.Verdicts["/nope|unittest|x.py"]; v.Passed() || !strings.Contains(v.Message, "no configured project matches path") {
		t.Errorf("unresolved verdict = %+v", v)
	}
	if v := res.Verdicts[leafA2]; v.Passed() || v.Message != "FAILED (failures=1)" {
		t.Errorf("%s = %+v, want FAILED (failures=1)", leafA2, v)
	}

	if got := inv.Files(); strings.Join(got, ",") != "test_1.py,test_2.py" {
		t.Errorf("invoked files = %v", got)
	}
	if passed, failed := res.Counts(); passed != 1 || failed != 2 {
		t.Errorf("Counts() = %d, %d; want 1, 2", passed, failed)
	}
	if res.Passed() {
		t.Error("Passed() = true with failures")
	}
	if got := res.Failed(); len(got) != 2 || got[1] != leafA2 {
		t.Errorf("Failed() = %v", got)
	}
	if _, err := uuid.Parse(res.BatchID); err != nil {
		t.Errorf("BatchID %q is not a uuid: %v", res.BatchID, err)
	}
}

func TestRun_NothingToRun(t *testing.T) {
	t.Parallel()
	r, inv, root := newTestRunner(Options{})

	res, err := r.Run(context.Background(), root, []*tree.Node{mustFind(t, root, "/work/c")})
	if !gtmerrors.IsKind(err, gtmerrors.KindBatch) {
		t.Fatalf("Run() error = %v, want batch error", err)
	}
	if res != nil {
		t.Errorf("Run() result = %+v, want nil", res)
	}
	if inv.CallCount() != 0 {
		t.Error("runner invoked with nothing selected")
	}
}

func TestRun_PanicBecomesFailedVerdict(t *testing.T) {
	t.Parallel()
	r, inv, root := newTestRunner(Options{})
	inv.WithResponse("test_1.py", mocks.Response{Hook: func(context.Context, process.Command) {
		panic("boom")
	}})

	res, err := r.Run(context.Background(), root, []*tree.Node{mustFind(t, root, "/work/a|unittest")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if v := res.Verdicts[leafA1]; v.Passed() || v.Message != "panic: boom" {
		t.Errorf("panicking leaf = %+v", v)
	}
	if !res.Verdicts[leafA2].Passed() {
		t.Errorf("leaf after panic = %+v, want passed", res.Verdicts[leafA2])
	}
}

func TestRun_Cancellation(t *testing.T) {
	t.Parallel()
	r, inv, root := newTestRunner(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inflightErr error
	inv.WithResponse("test_1.py", mocks.Response{
		Output: process.Output{Stderr: "OK\n"},
		Hook: func(ctx context.Context, _ process.Command) {
			cancel()
			inflightErr = ctx.Err()
		},
	})

	res, err := r.Run(ctx, root, []*tree.Node{mustFind(t, root, "/work/a")})
	if !errors.Is(err, context.Canceled) || !gtmerrors.IsKind(err, gtmerrors.KindBatch) {
		t.Errorf("Run() error = %v, want batch canceled", err)
	}
	if res == nil {
		t.Fatal("Run() result = nil on cancellation")
	}
	if inflightErr != nil {
		t.Errorf("in-flight leaf saw ctx.Err() = %v, want nil", inflightErr)
	}
	if !res.Verdicts[leafA1].Passed() {
		t.Errorf("in-flight leaf = %+v, want its own verdict", res.Verdicts[leafA1])
	}
	for _, id := range []string{leafA2, leafALogin} {
		if v := res.Verdicts[id]; v.Passed() || v.Message != NotRunMessage {
			t.Errorf("%s = %+v, want %q", id, v, NotRunMessage)
		}
	}
	if inv.CallCount() != 1 {
		t.Errorf("CallCount() = %d, want 1", inv.CallCount())
	}
}

func TestStream_EventOrder(t *testing.T) {
	t.Parallel()
	r, inv, root := newTestRunner(Options{})
	inv.WithStderr("test_b2.py", "Traceback\nAssertionError\n")

	var events []Event
	for e := range r.Stream(context.Background(), root, []*tree.Node{mustFind(t, root, "/work/b")}) {
		events = append(events, e)
	}

	want := []struct {
		typ  EventType
		leaf string
	}{
		{EventStarted, leafB1},
		{EventPassed, leafB1},
		{EventStarted, leafB2},
		{EventFailed, leafB2},
		{EventEnd, ""},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %+v, want %d", events, len(want))
	}
	for i, w := range want {
		if events[i].Type != w.typ || events[i].LeafID != w.leaf {
			t.Errorf("event %d = %s %s, want %s %s", i, events[i].Type, events[i].LeafID, w.typ, w.leaf)
		}
		if events[i].BatchID != events[0].BatchID {
			t.Errorf("event %d has batch id %q, want %q", i, events[i].BatchID, events[0].BatchID)
		}
	}
	if events[3].Verdict.Message != "AssertionError" {
		t.Errorf("failed event message = %q", events[3].Verdict.Message)
	}
	end := events[len(events)-1]
	if end.Err != nil || end.Result == nil || len(end.Result.Verdicts) != 2 {
		t.Errorf("end event = %+v", end)
	}
}

func TestStream_CanceledLeavesStillStart(t *testing.T) {
	t.Parallel()
	r, inv, root := newTestRunner(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inv.WithResponse("test_1.py", mocks.Response{
		Output: process.Output{Stderr: "OK\n"},
		Hook:   func(context.Context, process.Command) { cancel() },
	})

	var events []Event
	for e := range r.Stream(ctx, root, []*tree.Node{mustFind(t, root, "/work/a")}) {
		events = append(events, e)
	}

	want := []struct {
		typ  EventType
		leaf string
	}{
		{EventStarted, leafA1},
		{EventPassed, leafA1},
		{EventStarted, leafA2},
		{EventFailed, leafA2},
		{EventStarted, leafALogin},
		{EventFailed, leafALogin},
		{EventEnd, ""},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %+v, want %d", events, len(want))
	}
	for i, w := range want {
		if events[i].Type != w.typ || events[i].LeafID != w.leaf {
			t.Errorf("event %d = %s %s, want %s %s", i, events[i].Type, events[i].LeafID, w.typ, w.leaf)
		}
	}
	if msg := events[3].Verdict.Message; msg != NotRunMessage {
		t.Errorf("canceled leaf message = %q, want %q", msg, NotRunMessage)
	}
	if end := events[len(events)-1]; !errors.Is(end.Err, context.Canceled) {
		t.Errorf("end event error = %v, want context.Canceled", end.Err)
	}
}

func TestStream_BatchError(t *testing.T) {
	t.Parallel()
	r, _, root := newTestRunner(Options{})

	var events []Event
	for e := range r.Stream(context.Background(), root, []*tree.Node{mustFind(t, root, "/work/c")}) {
		events = append(events, e)
	}
	if len(events) != 1 || events[0].Type != EventEnd || !gtmerrors.IsKind(events[0].Err, gtmerrors.KindBatch) {
		t.Errorf("events = %+v, want single end event with batch error", events)
	}
}

func TestRun_ParallelProjects(t *testing.T) {
	t.Parallel()
	r, inv, root := newTestRunner(Options{Parallel: true, Workers: 2})

	var mu sync.Mutex
	var order []string
	track := func(_ context.Context, cmd process.Command) {
		mu.Lock()
		order = append(order, cmd.Args[len(cmd.Args)-1])
		mu.Unlock()
	}

	bStarted := make(chan struct{})
	waitForB := false
	inv.WithResponse("test_1.py", mocks.Response{
		Output: process.Output{Stderr: "OK\n"},
		Hook: func(ctx context.Context, cmd process.Command) {
			track(ctx, cmd)
			// Only returns early if project b runs at the same time.
			select {
			case <-bStarted:
			case <-time.After(5 * time.Second):
				waitForB = true
			}
		},
	})
	inv.WithResponse("test_b1.py", mocks.Response{
		Output: process.Output{Stderr: "OK\n"},
		Hook: func(ctx context.Context, cmd process.Command) {
			track(ctx, cmd)
			close(bStarted)
		},
	})
	for _, f := range []string{"test_2.py", "test_b2.py"} {
		inv.WithResponse(f, mocks.Response{Output: process.Output{Stderr: "OK\n"}, Hook: track})
	}

	res, err := r.Run(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if waitForB {
		t.Error("projects did not run concurrently")
	}
	if !res.Passed() {
		t.Errorf("Failed() = %v", res.Failed())
	}

	// Order within each project is preserved.
	pos := make(map[string]int)
	for i, f := range order {
		pos[f] = i
	}
	if pos["test_1.py"] > pos["test_2.py"] || pos["test_b1.py"] > pos["test_b2.py"] {
		t.Errorf("per-project order broken: %v", order)
	}
	if strings.Join(res.Order, ",") != strings.Join([]string{leafA1, leafA2, leafALogin, leafB1, leafB2}, ",") {
		t.Errorf("Order = %v", res.Order)
	}
}

func TestRun_ArchivesAfterEachLeaf(t *testing.T) {
	t.Parallel()
	r, _, root := newTestRunner(Options{})
	archiver := &recordingArchiver{enabled: true, err: errors.New("disk full")}
	rec := newRecordingRecorder()
	r.SetArchiver(archiver)
	r.SetRecorder(rec)

	res, err := r.Run(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Only project a has evidence collectors.
	if got := strings.Join(archiver.projects, ","); got != "/work/a,/work/a,/work/a" {
		t.Errorf("archived projects = %v", archiver.projects)
	}
	if !res.Passed() {
		t.Errorf("archive failure changed verdicts: %v", res.Failed())
	}
	if rec.archiveErrors != 3 || rec.archiveOK != 0 {
		t.Errorf("archive metrics = %d errors, %d ok", rec.archiveErrors, rec.archiveOK)
	}
	if rec.leaves["unittest/true"] != 4 || rec.leaves["behave/true"] != 1 {
		t.Errorf("leaf metrics = %v", rec.leaves)
	}
	if len(rec.batches) != 1 || !rec.batches[0] {
		t.Errorf("batch metrics = %v", rec.batches)
	}
}

func TestRun_ArchiverDisabled(t *testing.T) {
	t.Parallel()
	r, _, root := newTestRunner(Options{})
	archiver := &recordingArchiver{}
	r.SetArchiver(archiver)

	if _, err := r.Run(context.Background(), root, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(archiver.projects) != 0 {
		t.Errorf("disabled archiver called for %v", archiver.projects)
	}
}

func TestResult_Passed(t *testing.T) {
	t.Parallel()

	res := newResult("b", []string{"x", "y"})
	res.record("x", testparser.Pass(nil), time.Millisecond)
	if res.Passed() {
		t.Error("Passed() = true with a leaf missing a verdict")
	}
	res.record("y", testparser.Pass(nil), time.Millisecond)
	if !res.Passed() {
		t.Error("Passed() = false with all leaves passed")
	}
}

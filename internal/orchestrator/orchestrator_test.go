package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/catalog"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/sink"
	"github.com/shaiso/Conveyor/internal/worker"
)

// --- Helpers ---

// recorder сохраняет все опубликованные snapshots.
type recorder struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
}

func (r *recorder) Publish(_ context.Context, s domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *recorder) all() []domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Snapshot(nil), r.snaps...)
}

// gatedExecutor блокирует шаг до release или отмены context.
type gatedExecutor struct {
	started chan string
	release chan struct{}
}

func newGatedExecutor() *gatedExecutor {
	return &gatedExecutor{
		started: make(chan string, 64),
		release: make(chan struct{}),
	}
}

func (g *gatedExecutor) Execute(ctx context.Context, req *worker.Request, emit worker.EmitFunc) error {
	g.started <- req.Step.ID
	select {
	case <-g.release:
		emit(worker.Tick{Progress: 100})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func step(id string, metrics ...domain.MetricDef) domain.StepDescriptor {
	return domain.StepDescriptor{
		ID:              id,
		Name:            "Step " + id,
		NominalDuration: 10 * time.Millisecond,
		Details:         metrics,
	}
}

func testCatalog(t *testing.T, steps ...domain.StepDescriptor) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(steps, nil)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return c
}

func instantWait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func simulated(t *testing.T, cat *catalog.Catalog) worker.Executor {
	t.Helper()
	exec, err := worker.NewSimulatedExecutor(worker.SimulatedConfig{
		Ticks:   10,
		Project: cat.Project,
		Wait:    instantWait,
	})
	if err != nil {
		t.Fatalf("NewSimulatedExecutor: %v", err)
	}
	return exec
}

func newController(t *testing.T, cat *catalog.Catalog, exec worker.Executor, sinks ...sink.Sink) *Controller {
	t.Helper()
	ctrl, err := New(Config{
		Catalog:   cat,
		Executors: worker.NewRegistry(exec),
		Sinks:     sinks,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(ctrl.Close)
	return ctrl
}

func payload() *domain.AnalysisPayload {
	return &domain.AnalysisPayload{ID: "rfp-1", Documents: []string{"rfp.pdf"}}
}

func wait(t *testing.T, ctrl *Controller) domain.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := ctrl.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return snap
}

func waitStarted(t *testing.T, g *gatedExecutor) string {
	t.Helper()
	select {
	case id := <-g.started:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("step did not start")
		return ""
	}
}

// checkInvariants проверяет инварианты на каждом опубликованном snapshot.
func checkInvariants(t *testing.T, snaps []domain.Snapshot) {
	t.Helper()

	var prev *domain.Snapshot
	for i := range snaps {
		s := snaps[i]

		if prev != nil && s.Version <= prev.Version {
			t.Errorf("version not increasing: %d after %d", s.Version, prev.Version)
		}
		if n := s.RunningCount(); n > 1 {
			t.Errorf("version %d: %d steps running", s.Version, n)
		}

		var sum float64
		for j, st := range s.Steps {
			sum += st.Progress
			if st.Progress < 0 || st.Progress > 100 {
				t.Errorf("version %d step %s: progress %v out of range", s.Version, st.ID, st.Progress)
			}
			for _, m := range st.Totals {
				v := st.Details[m.Name]
				if v > m.Total {
					t.Errorf("version %d step %s: %s=%d exceeds total %d", s.Version, st.ID, m.Name, v, m.Total)
				}
				if (st.Progress == 100) != (v == m.Total) && m.Total > 0 {
					t.Errorf("version %d step %s: %s=%d total=%d at progress %v", s.Version, st.ID, m.Name, v, m.Total, st.Progress)
				}
			}

			if prev != nil && prev.RunID == s.RunID && prev.State == domain.RunStateRunning {
				p := prev.Steps[j]
				if st.Progress < p.Progress {
					t.Errorf("version %d step %s: progress decreased %v → %v", s.Version, st.ID, p.Progress, st.Progress)
				}
			}
		}

		want := sum / float64(len(s.Steps))
		if math.Abs(s.OverallProgress-want) > 1e-9 {
			t.Errorf("version %d: overall %v, want mean %v", s.Version, s.OverallProgress, want)
		}

		prev = &snaps[i]
	}
}

// --- New Tests ---

func TestNew_Validation(t *testing.T) {
	cat := testCatalog(t, step("a"))

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no catalog", Config{Executors: worker.NewRegistry(worker.ExecutorFunc(nil))}},
		{"no executors", Config{Catalog: cat}},
		{"no executor for step", Config{Catalog: cat, Executors: worker.NewRegistry(nil)}},
		{"negative timeout", Config{Catalog: cat, Executors: worker.NewRegistry(newGatedExecutor()), StepTimeoutGrace: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestController_InitialSnapshot(t *testing.T) {
	cat := catalog.Default()
	ctrl := newController(t, cat, simulated(t, cat))

	snap := ctrl.Snapshot()
	if snap.State != domain.RunStateIdle {
		t.Errorf("expected IDLE, got %s", snap.State)
	}
	if snap.OverallProgress != 0 {
		t.Errorf("expected overall 0, got %v", snap.OverallProgress)
	}
	if len(snap.Steps) != cat.Len() {
		t.Fatalf("expected %d steps, got %d", cat.Len(), len(snap.Steps))
	}
	for _, st := range snap.Steps {
		if st.Status != domain.StepStatusPending || st.Progress != 0 {
			t.Errorf("step %s: expected PENDING/0, got %s/%v", st.ID, st.Status, st.Progress)
		}
		for _, m := range st.Totals {
			if st.Details[m.Name] != 0 {
				t.Errorf("step %s: metric %s not zero", st.ID, m.Name)
			}
		}
	}
}

// --- Start Tests ---

func TestController_RunToCompletion(t *testing.T) {
	cat := catalog.Default()
	rec := &recorder{}
	ctrl := newController(t, cat, simulated(t, cat), rec)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := wait(t, ctrl)

	if snap.State != domain.RunStateCompleted {
		t.Fatalf("expected COMPLETED, got %s (error: %s)", snap.State, snap.Error)
	}
	if snap.OverallProgress != 100 {
		t.Errorf("expected overall 100, got %v", snap.OverallProgress)
	}
	if snap.CurrentStepIndex != cat.Len()-1 {
		t.Errorf("expected current index %d, got %d", cat.Len()-1, snap.CurrentStepIndex)
	}
	for _, st := range snap.Steps {
		if st.Status != domain.StepStatusCompleted || st.Progress != 100 {
			t.Errorf("step %s: expected COMPLETED/100, got %s/%v", st.ID, st.Status, st.Progress)
		}
		for _, m := range st.Totals {
			if st.Details[m.Name] != m.Total {
				t.Errorf("step %s: %s=%d, want %d", st.ID, m.Name, st.Details[m.Name], m.Total)
			}
		}
	}

	snaps := rec.all()
	if len(snaps) == 0 {
		t.Fatal("no snapshots published")
	}
	if last := snaps[len(snaps)-1]; last.State != domain.RunStateCompleted {
		t.Errorf("last published snapshot is %s", last.State)
	}
	checkInvariants(t, snaps)
}

func TestController_StartWithoutPayload(t *testing.T) {
	cat := testCatalog(t, step("a"))
	rec := &recorder{}
	ctrl := newController(t, cat, newGatedExecutor(), rec)

	err := ctrl.Start(context.Background(), nil)
	if !errors.Is(err, ErrPrecondition) || !errors.Is(err, ErrNoPayload) {
		t.Fatalf("expected ErrPrecondition+ErrNoPayload, got %v", err)
	}
	if ctrl.State() != domain.RunStateIdle {
		t.Errorf("expected IDLE, got %s", ctrl.State())
	}
	if len(rec.all()) != 0 {
		t.Error("rejected start must not publish")
	}
}

func TestController_ConcurrentStart(t *testing.T) {
	cat := testCatalog(t, step("a"))
	gate := newGatedExecutor()
	ctrl := newController(t, cat, gate)

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- ctrl.Start(context.Background(), payload())
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrPrecondition) && errors.Is(err, ErrRunActive):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful start, got %d", succeeded)
	}

	waitStarted(t, gate)
	close(gate.release)
	if snap := wait(t, ctrl); snap.State != domain.RunStateCompleted {
		t.Errorf("expected COMPLETED, got %s", snap.State)
	}

	select {
	case id := <-gate.started:
		t.Errorf("step %s executed twice", id)
	default:
	}
}

func TestController_DetailProjection(t *testing.T) {
	cat := testCatalog(t, step("a", domain.MetricDef{Name: "extractedPages", Total: 45}))
	ticked := make(chan struct{})
	exec := worker.ExecutorFunc(func(ctx context.Context, _ *worker.Request, emit worker.EmitFunc) error {
		emit(worker.Tick{Progress: 60})
		close(ticked)
		<-ctx.Done()
		return ctx.Err()
	})
	ctrl := newController(t, cat, exec)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-ticked

	st := ctrl.Snapshot().Steps[0]
	if st.Progress != 60 {
		t.Errorf("expected progress 60, got %v", st.Progress)
	}
	if got := st.Details["extractedPages"]; got != 27 {
		t.Errorf("expected extractedPages 27, got %d", got)
	}
}

func TestController_OverallProgressIsMean(t *testing.T) {
	cat := testCatalog(t, step("a"), step("b"))
	bStarted := make(chan struct{})
	exec := worker.ExecutorFunc(func(ctx context.Context, req *worker.Request, emit worker.EmitFunc) error {
		if req.Step.ID == "a" {
			emit(worker.Tick{Progress: 100})
			return nil
		}
		close(bStarted)
		<-ctx.Done()
		return ctx.Err()
	})
	ctrl := newController(t, cat, exec)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-bStarted

	snap := ctrl.Snapshot()
	if snap.OverallProgress != 50 {
		t.Errorf("expected overall 50, got %v", snap.OverallProgress)
	}
	if snap.CurrentStepIndex != 1 {
		t.Errorf("expected current index 1, got %d", snap.CurrentStepIndex)
	}
	if snap.Steps[1].Status != domain.StepStatusRunning {
		t.Errorf("expected step b RUNNING, got %s", snap.Steps[1].Status)
	}
}

func TestController_ExecutorReturnsBeforeHundred(t *testing.T) {
	cat := testCatalog(t, step("a", domain.MetricDef{Name: "chunks", Total: 320}))
	exec := worker.ExecutorFunc(func(_ context.Context, _ *worker.Request, emit worker.EmitFunc) error {
		emit(worker.Tick{Progress: 40})
		return nil
	})
	ctrl := newController(t, cat, exec)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := wait(t, ctrl)

	st := snap.Steps[0]
	if st.Status != domain.StepStatusCompleted || st.Progress != 100 {
		t.Errorf("expected COMPLETED/100, got %s/%v", st.Status, st.Progress)
	}
	if st.Details["chunks"] != 320 {
		t.Errorf("expected chunks 320, got %d", st.Details["chunks"])
	}
}

func TestController_TicksAreClamped(t *testing.T) {
	cat := testCatalog(t, step("a", domain.MetricDef{Name: "sections", Total: 12}))
	rec := &recorder{}
	exec := worker.ExecutorFunc(func(_ context.Context, _ *worker.Request, emit worker.EmitFunc) error {
		emit(worker.Tick{Progress: 50, Details: map[string]int{"sections": 6}})
		emit(worker.Tick{Progress: 30, Details: map[string]int{"sections": 2}})
		emit(worker.Tick{Progress: math.NaN()})
		emit(worker.Tick{Progress: 90, Details: map[string]int{"sections": 99, "unknown": 5}})
		emit(worker.Tick{Progress: 150})
		return nil
	})
	ctrl := newController(t, cat, exec, rec)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	wait(t, ctrl)

	snaps := rec.all()
	checkInvariants(t, snaps)

	var sawNinety bool
	for _, s := range snaps {
		st := s.Steps[0]
		if _, ok := st.Details["unknown"]; ok {
			t.Error("metric outside schema leaked into snapshot")
		}
		if st.Progress == 90 {
			sawNinety = true
			if st.Details["sections"] != 11 {
				t.Errorf("expected sections clamped to 11 below 100%%, got %d", st.Details["sections"])
			}
		}
	}
	if !sawNinety {
		t.Error("expected a snapshot at progress 90")
	}
}

// --- Failure Tests ---

func TestController_FailingStep(t *testing.T) {
	cat := testCatalog(t,
		step("a", domain.MetricDef{Name: "n", Total: 10}),
		step("b", domain.MetricDef{Name: "n", Total: 10}),
		step("c", domain.MetricDef{Name: "n", Total: 10}),
	)
	errEngine := errors.New("analysis engine unavailable")
	exec := worker.ExecutorFunc(func(_ context.Context, req *worker.Request, emit worker.EmitFunc) error {
		if req.Step.ID == "b" {
			emit(worker.Tick{Progress: 30})
			return errEngine
		}
		emit(worker.Tick{Progress: 100})
		return nil
	})
	rec := &recorder{}
	ctrl := newController(t, cat, exec, rec)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := wait(t, ctrl)

	if snap.State != domain.RunStateFailed {
		t.Fatalf("expected FAILED, got %s", snap.State)
	}
	if snap.CurrentStepIndex != 1 {
		t.Errorf("expected current index 1, got %d", snap.CurrentStepIndex)
	}
	wantStatus := []domain.StepStatus{domain.StepStatusCompleted, domain.StepStatusFailed, domain.StepStatusPending}
	for i, want := range wantStatus {
		if snap.Steps[i].Status != want {
			t.Errorf("step %d: expected %s, got %s", i, want, snap.Steps[i].Status)
		}
	}
	if snap.Steps[1].Progress != 30 || snap.Steps[1].Details["n"] != 3 {
		t.Errorf("failed step should keep last progress: %v / %v", snap.Steps[1].Progress, snap.Steps[1].Details)
	}
	if snap.Steps[2].Progress != 0 {
		t.Errorf("later step should stay at 0, got %v", snap.Steps[2].Progress)
	}
	if snap.Error == "" {
		t.Error("expected run error text")
	}

	runErr := ctrl.LastError()
	if !errors.Is(runErr, ErrStepFailed) || !errors.Is(runErr, errEngine) {
		t.Errorf("expected ErrStepFailed wrapping engine error, got %v", runErr)
	}
	var stepErr *StepError
	if !errors.As(runErr, &stepErr) || stepErr.StepID != "b" || stepErr.Index != 1 {
		t.Errorf("expected StepError for b/#1, got %+v", stepErr)
	}

	checkInvariants(t, rec.all())

	// После FAILED нужен явный reset.
	err := ctrl.Start(context.Background(), payload())
	if !errors.Is(err, ErrPrecondition) || !errors.Is(err, ErrResetRequired) {
		t.Fatalf("expected ErrResetRequired, got %v", err)
	}

	if err := ctrl.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	reset := ctrl.Snapshot()
	if reset.State != domain.RunStateIdle || reset.OverallProgress != 0 || reset.Error != "" {
		t.Errorf("expected clean IDLE, got %s overall=%v error=%q", reset.State, reset.OverallProgress, reset.Error)
	}
	if ctrl.LastError() != nil {
		t.Error("LastError should be cleared by reset")
	}
}

func TestController_StepTimeout(t *testing.T) {
	cat := testCatalog(t, step("slow"))
	exec := worker.ExecutorFunc(func(ctx context.Context, _ *worker.Request, _ worker.EmitFunc) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctrl, err := New(Config{
		Catalog:           cat,
		Executors:         worker.NewRegistry(exec),
		StepTimeoutFactor: 1,
		StepTimeoutGrace:  20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(ctrl.Close)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := wait(t, ctrl)

	if snap.State != domain.RunStateFailed {
		t.Fatalf("expected FAILED, got %s", snap.State)
	}
	if !errors.Is(ctrl.LastError(), ErrStepTimeout) {
		t.Errorf("expected ErrStepTimeout, got %v", ctrl.LastError())
	}
}

func TestController_ExecutorIgnoringCancellation(t *testing.T) {
	cat := testCatalog(t, step("stuck"))
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	exec := worker.ExecutorFunc(func(_ context.Context, _ *worker.Request, emit worker.EmitFunc) error {
		<-block
		emit(worker.Tick{Progress: 100})
		return nil
	})

	ctrl, err := New(Config{
		Catalog:           cat,
		Executors:         worker.NewRegistry(exec),
		StepTimeoutFactor: 1,
		StepTimeoutGrace:  20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(ctrl.Close)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := wait(t, ctrl)

	if snap.State != domain.RunStateFailed || !errors.Is(ctrl.LastError(), ErrStepTimeout) {
		t.Errorf("expected FAILED by timeout, got %s / %v", snap.State, ctrl.LastError())
	}
}

func TestController_ExecutorPanic(t *testing.T) {
	cat := testCatalog(t, step("a"))
	exec := worker.ExecutorFunc(func(context.Context, *worker.Request, worker.EmitFunc) error {
		panic("boom")
	})
	ctrl := newController(t, cat, exec)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if snap := wait(t, ctrl); snap.State != domain.RunStateFailed {
		t.Errorf("expected FAILED after panic, got %s", snap.State)
	}
}

func TestController_SinkErrorDoesNotAffectRun(t *testing.T) {
	cat := testCatalog(t, step("a"), step("b"))
	failing := sink.Func(func(context.Context, domain.Snapshot) error {
		return errors.New("sink down")
	})
	ctrl := newController(t, cat, simulated(t, cat), failing)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if snap := wait(t, ctrl); snap.State != domain.RunStateCompleted {
		t.Errorf("expected COMPLETED despite sink errors, got %s", snap.State)
	}
}

func TestController_SlowSinkDoesNotAffectRun(t *testing.T) {
	cat := testCatalog(t, step("a", domain.MetricDef{Name: "n", Total: 10}), step("b"))
	rec := &recorder{}
	slow := sink.Func(func(ctx context.Context, snap domain.Snapshot) error {
		time.Sleep(50 * time.Millisecond)
		return rec.Publish(ctx, snap)
	})

	ctrl, err := New(Config{
		Catalog:           cat,
		Executors:         worker.NewRegistry(simulated(t, cat)),
		Sinks:             []sink.Sink{slow},
		StepTimeoutFactor: 1,
		StepTimeoutGrace:  200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(ctrl.Close)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := ctrl.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if snap.State != domain.RunStateCompleted {
		t.Fatalf("expected COMPLETED with slow sink, got %s (error: %s)", snap.State, snap.Error)
	}

	snaps := rec.all()
	checkInvariants(t, snaps)
	last := snaps[len(snaps)-1]
	if last.Version != snap.Version || last.State != domain.RunStateCompleted {
		t.Errorf("last delivered v%d %s, want v%d COMPLETED", last.Version, last.State, snap.Version)
	}

	// Переход шага не склеивается с тиками.
	var sawStepCompleted bool
	for _, s := range snaps {
		if s.State == domain.RunStateRunning && s.Steps[0].Status == domain.StepStatusCompleted &&
			s.Steps[1].Status == domain.StepStatusPending {
			sawStepCompleted = true
		}
	}
	if !sawStepCompleted {
		t.Error("expected a snapshot with step a COMPLETED and step b PENDING")
	}
}

func TestController_StartWithCanceledContext(t *testing.T) {
	cat := testCatalog(t, step("a"))
	rec := &recorder{}
	ctrl := newController(t, cat, newGatedExecutor(), rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ctrl.Start(ctx, payload()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ctrl.State() != domain.RunStateIdle {
		t.Errorf("expected IDLE, got %s", ctrl.State())
	}
}

// --- Publisher Tests ---

func tickSnapshot(v uint64, progress float64) domain.Snapshot {
	return domain.Snapshot{
		State:   domain.RunStateRunning,
		Version: v,
		Steps:   []domain.StepSnapshot{{ID: "a", Status: domain.StepStatusRunning, Progress: progress}},
	}
}

func TestPublisher_CoalescesTicksKeepsTransitions(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	rec := &recorder{}
	blocking := sink.Func(func(ctx context.Context, snap domain.Snapshot) error {
		if snap.Version == 1 {
			close(entered)
			<-release
		}
		return rec.Publish(ctx, snap)
	})

	const backlog = 4
	p := newPublisher(blocking, time.Second, backlog, slog.Default())
	t.Cleanup(p.close)

	p.enqueue(tickSnapshot(1, 0))
	<-entered

	for v := uint64(2); v <= 10; v++ {
		p.enqueue(tickSnapshot(v, float64(v*10)))
	}
	done := tickSnapshot(11, 100)
	done.State = domain.RunStateCompleted
	done.Steps[0].Status = domain.StepStatusCompleted
	p.enqueue(done)

	start := time.Now()
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.flush(ctx, 11); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("flush took too long")
	}

	var versions []uint64
	for _, s := range rec.all() {
		versions = append(versions, s.Version)
	}
	want := []uint64{1, 2, 3, 4, 10, 11}
	if len(versions) != len(want) {
		t.Fatalf("delivered versions %v, want %v", versions, want)
	}
	for i := range want {
		if versions[i] != want[i] {
			t.Fatalf("delivered versions %v, want %v", versions, want)
		}
	}
}

func TestPublisher_EnqueueDoesNotBlock(t *testing.T) {
	hung := sink.Func(func(ctx context.Context, _ domain.Snapshot) error {
		<-ctx.Done()
		return ctx.Err()
	})
	p := newPublisher(hung, 50*time.Millisecond, defaultPublishBacklog, slog.Default())

	start := time.Now()
	for v := uint64(1); v <= 100; v++ {
		p.enqueue(tickSnapshot(v, float64(v)))
	}
	if d := time.Since(start); d > 40*time.Millisecond {
		t.Errorf("enqueue blocked for %v", d)
	}

	p.close()
	p.enqueue(tickSnapshot(101, 100))
	if err := p.flush(context.Background(), 101); err != nil {
		t.Errorf("flush after close: %v", err)
	}
}

// --- Reset Tests ---

func TestController_ResetWhileRunning(t *testing.T) {
	cat := testCatalog(t, step("a"))
	gate := newGatedExecutor()
	ctrl := newController(t, cat, gate)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, gate)

	if err := ctrl.Reset(); !errors.Is(err, ErrInvalidReset) {
		t.Fatalf("expected ErrInvalidReset, got %v", err)
	}
	if ctrl.State() != domain.RunStateRunning {
		t.Errorf("rejected reset must not change state, got %s", ctrl.State())
	}

	close(gate.release)
	wait(t, ctrl)
}

func TestController_ResetKeepsCatalog(t *testing.T) {
	cat := catalog.Default()
	ctrl := newController(t, cat, simulated(t, cat))

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	wait(t, ctrl)

	if err := ctrl.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	snap := ctrl.Snapshot()
	if snap.State != domain.RunStateIdle || snap.CurrentStepIndex != 0 || snap.StartedAt != nil {
		t.Errorf("expected clean IDLE, got %+v", snap)
	}
	for i, want := range cat.Steps() {
		st := snap.Steps[i]
		if st.ID != want.ID || st.Name != want.Name || st.Description != want.Description {
			t.Errorf("step %d descriptor changed: %s/%s", i, st.ID, st.Name)
		}
		if st.NominalDurationMs != want.NominalDuration.Milliseconds() {
			t.Errorf("step %s nominal duration changed", st.ID)
		}
		if len(st.Totals) != len(want.Details) {
			t.Errorf("step %s totals changed", st.ID)
		}
		if st.Status != domain.StepStatusPending || st.Progress != 0 {
			t.Errorf("step %s: expected PENDING/0, got %s/%v", st.ID, st.Status, st.Progress)
		}
		for _, m := range want.Details {
			if st.Details[m.Name] != 0 {
				t.Errorf("step %s: metric %s not reset", st.ID, m.Name)
			}
		}
	}
}

func TestController_RestartFromCompleted(t *testing.T) {
	cat := testCatalog(t, step("a"))
	ctrl := newController(t, cat, simulated(t, cat))

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := wait(t, ctrl)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("restart from COMPLETED: %v", err)
	}
	second := wait(t, ctrl)

	if second.State != domain.RunStateCompleted {
		t.Errorf("expected COMPLETED, got %s", second.State)
	}
	if first.RunID == second.RunID {
		t.Error("expected a new run id on restart")
	}
	if second.Version <= first.Version {
		t.Errorf("expected version to grow across runs: %d → %d", first.Version, second.Version)
	}
}

// --- Lifecycle Tests ---

func TestController_Close(t *testing.T) {
	cat := testCatalog(t, step("a"), step("b"))
	gate := newGatedExecutor()
	ctrl, err := New(Config{Catalog: cat, Executors: worker.NewRegistry(gate)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, gate)

	ctrl.Close()
	ctrl.Close()

	snap := ctrl.Snapshot()
	if snap.State != domain.RunStateFailed {
		t.Errorf("expected FAILED after close, got %s", snap.State)
	}
	if !errors.Is(ctrl.LastError(), ErrShutdown) {
		t.Errorf("expected ErrShutdown, got %v", ctrl.LastError())
	}
	if snap.Steps[1].Status != domain.StepStatusPending {
		t.Errorf("expected step b PENDING, got %s", snap.Steps[1].Status)
	}
	if err := ctrl.Start(context.Background(), payload()); !errors.Is(err, ErrShutdown) {
		t.Errorf("expected ErrShutdown after close, got %v", err)
	}
}

func TestController_WaitContext(t *testing.T) {
	cat := testCatalog(t, step("a"))
	gate := newGatedExecutor()
	ctrl := newController(t, cat, gate)

	if err := ctrl.Start(context.Background(), payload()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	snap, err := ctrl.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if snap.State != domain.RunStateRunning {
		t.Errorf("expected RUNNING snapshot, got %s", snap.State)
	}

	close(gate.release)
	wait(t, ctrl)
}

func TestController_PayloadIsCopied(t *testing.T) {
	cat := testCatalog(t, step("a"))
	var seen *domain.AnalysisPayload
	exec := worker.ExecutorFunc(func(_ context.Context, req *worker.Request, _ worker.EmitFunc) error {
		seen = req.Payload
		return nil
	})
	ctrl := newController(t, cat, exec)

	p := payload()
	if err := ctrl.Start(context.Background(), p); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Documents[0] = "mutated.pdf"
	wait(t, ctrl)

	if seen == nil || seen.Documents[0] != "rfp.pdf" {
		t.Errorf("executor saw caller mutation: %+v", seen)
	}
}

// --- Command Tests ---

func delivery(t *testing.T, msgType mq.MessageType, payload any) *mq.Delivery {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &mq.Delivery{Message: mq.Message{ID: "msg-1", Type: msgType, Payload: json.RawMessage(raw)}}
}

func TestHandleCommand(t *testing.T) {
	cat := testCatalog(t, step("a"))
	gate := newGatedExecutor()
	ctrl := newController(t, cat, gate)
	ctx := context.Background()

	if err := ctrl.HandleCommand(ctx, delivery(t, mq.MessageTypePipelineStart, mq.StartCommand{})); err != nil {
		t.Fatalf("start without payload should be acked, got %v", err)
	}
	if ctrl.State() != domain.RunStateIdle {
		t.Fatalf("expected IDLE after rejected start, got %s", ctrl.State())
	}

	start := delivery(t, mq.MessageTypePipelineStart, mq.StartCommand{Payload: payload()})
	if err := ctrl.HandleCommand(ctx, start); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitStarted(t, gate)

	if err := ctrl.HandleCommand(ctx, start); err != nil {
		t.Errorf("duplicate start should be acked, got %v", err)
	}
	if err := ctrl.HandleCommand(ctx, delivery(t, mq.MessageTypePipelineReset, struct{}{})); err != nil {
		t.Errorf("rejected reset should be acked, got %v", err)
	}
	if ctrl.State() != domain.RunStateRunning {
		t.Errorf("expected RUNNING, got %s", ctrl.State())
	}

	close(gate.release)
	wait(t, ctrl)

	if err := ctrl.HandleCommand(ctx, delivery(t, mq.MessageTypePipelineReset, struct{}{})); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if ctrl.State() != domain.RunStateIdle {
		t.Errorf("expected IDLE after reset, got %s", ctrl.State())
	}

	if err := ctrl.HandleCommand(ctx, delivery(t, "pipeline.unknown", nil)); err != nil {
		t.Errorf("unknown command should be acked, got %v", err)
	}
}

// --- Clamp Tests ---

func TestClampProgress(t *testing.T) {
	tests := []struct {
		name       string
		prev, next float64
		want       float64
	}{
		{"forward", 10, 20, 20},
		{"backwards", 40, 20, 40},
		{"over 100", 90, 120, 100},
		{"nan", 30, math.NaN(), 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampProgress(tt.prev, tt.next); got != tt.want {
				t.Errorf("clampProgress(%v, %v) = %v, want %v", tt.prev, tt.next, got, tt.want)
			}
		})
	}
}

func TestClampDetails(t *testing.T) {
	schema := []domain.MetricDef{{Name: "pages", Total: 45}, {Name: "tables", Total: 0}}

	tests := []struct {
		name     string
		prev     map[string]int
		next     map[string]int
		progress float64
		want     map[string]int
	}{
		{"linear", map[string]int{"pages": 10}, map[string]int{"pages": 27}, 60, map[string]int{"pages": 27, "tables": 0}},
		{"not decreasing", map[string]int{"pages": 30}, map[string]int{"pages": 5}, 70, map[string]int{"pages": 30, "tables": 0}},
		{"below total before 100", map[string]int{"pages": 0}, map[string]int{"pages": 45}, 99, map[string]int{"pages": 44, "tables": 0}},
		{"missing keeps prev", map[string]int{"pages": 12}, map[string]int{}, 50, map[string]int{"pages": 12, "tables": 0}},
		{"total at 100", map[string]int{"pages": 3}, map[string]int{"pages": 3}, 100, map[string]int{"pages": 45, "tables": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampDetails(schema, tt.prev, tt.next, tt.progress)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %d, want %d", k, got[k], v)
				}
			}
		})
	}
}

package app

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/johnsnewby/transcriberd/internal/audit"
	"github.com/johnsnewby/transcriberd/internal/config"
	"github.com/johnsnewby/transcriberd/internal/observe"
	"github.com/johnsnewby/transcriberd/internal/session"
	"github.com/johnsnewby/transcriberd/internal/transcript"
	"github.com/johnsnewby/transcriberd/internal/worker"
)

// testModelPath returns the path to a whisper.cpp model for integration
// tests that need a real *worker.Pool. Reads WHISPER_MODEL_PATH; skips the
// test when unset, matching internal/worker's native-inference test gate.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

// TestNew_WiresFullPipeline checks the wiring steps that New performs
// without calling New itself: it assembles an App by hand around a pool
// loaded from a real whisper.cpp model, then runs initRemote and
// initServer. WHISPER_MODEL_PATH must point at the model file itself, since
// New composes its path from cfg.WhisperModel instead.
func TestNew_WiresFullPipeline(t *testing.T) {
	modelPath := testModelPath(t)
	pool, err := worker.New(modelPath, noopDelivery{}, observe.DefaultMetrics())
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	cfg := config.Defaults()
	cfg.Listen = "127.0.0.1:0"
	cfg.WhisperServer = "http://127.0.0.1:0"

	a := &App{cfg: cfg, metrics: observe.DefaultMetrics(), pool: pool}
	a.registry = session.NewRegistry()
	a.queue = nil
	a.ledger = audit.NewNoop()
	a.initRemote(nil)
	a.initServer()

	if a.srv == nil {
		t.Fatal("initServer did not construct a server")
	}
	if a.remote == nil {
		t.Fatal("expected a remote worker since WhisperServer is configured")
	}
}

func TestReadinessCheckers_FailsWhenNoLiveWorker(t *testing.T) {
	pool, err := worker.New(testModelPath(t), noopDelivery{}, observe.DefaultMetrics())
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	a := &App{pool: pool, ledger: audit.NewNoop()}

	found := false
	for _, c := range a.readinessCheckers() {
		if c.Name != "worker_pool" {
			continue
		}
		found = true
		if err := c.Check(context.Background()); err == nil {
			t.Fatal("expected worker_pool check to fail before Start is called")
		}
	}
	if !found {
		t.Fatal("expected a worker_pool checker to be registered")
	}
}

func TestReadinessCheckers_AuditCheckAlwaysPassesForNoopLedger(t *testing.T) {
	pool, err := worker.New(testModelPath(t), noopDelivery{}, observe.DefaultMetrics())
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	a := &App{pool: pool, ledger: audit.NewNoop()}

	found := false
	for _, c := range a.readinessCheckers() {
		if c.Name != "audit_db" {
			continue
		}
		found = true
		if err := c.Check(context.Background()); err != nil {
			t.Fatalf("noop ledger's audit_db check should always pass, got %v", err)
		}
	}
	if !found {
		t.Fatal("expected an audit_db checker since noopLedger implements audit.Pinger")
	}
}

func TestRunExpirySweep_RemovesIdleSessions(t *testing.T) {
	a := &App{
		registry: session.NewRegistry(),
		metrics:  observe.DefaultMetrics(),
	}
	sess := session.New(1, "ext-1", "de", 44100)
	sess.UpdatedAt = time.Now().Add(-48 * time.Hour)
	a.registry.Insert(sess)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.runExpirySweep(ctx)
		close(done)
	}()

	// runExpirySweep only checks on its own ticker; call Expire directly to
	// assert the contract it relies on, then cancel to confirm clean exit.
	if n := a.registry.Expire(); n != 1 {
		t.Fatalf("Expire() = %d, want 1", n)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runExpirySweep did not exit after ctx cancellation")
	}
}

func TestShutdown_RunsClosersInReverseOrder(t *testing.T) {
	var order []int
	a := &App{
		closers: []func() error{
			func() error { order = append(order, 0); return nil },
			func() error { order = append(order, 1); return nil },
			func() error { order = append(order, 2); return nil },
		},
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	want := []int{2, 1, 0}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdown_IsIdempotent(t *testing.T) {
	calls := 0
	a := &App{closers: []func() error{func() error { calls++; return nil }}}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if calls != 1 {
		t.Fatalf("closer ran %d times, want 1", calls)
	}
}

type noopDelivery struct{}

func (noopDelivery) Deliver(context.Context, int64, transcript.Response) error { return nil }

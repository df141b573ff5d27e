// Package worker runs the local whisper.cpp-backed inference pool: N OS
// threads, each lowering its scheduling priority and subscribing to the job
// queue, sharing one process-wide model context.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/johnsnewby/transcriberd/internal/jobqueue"
	"github.com/johnsnewby/transcriberd/internal/observe"
	"github.com/johnsnewby/transcriberd/internal/resample"
	"github.com/johnsnewby/transcriberd/internal/transcript"
)

// Delivery sends a produced segment to wherever the connection handler's
// session-delivery path lives. It mirrors process_transcription's contract:
// the pool never touches the registry or response store directly.
type Delivery interface {
	Deliver(ctx context.Context, sessionID int64, resp transcript.Response) error
}

// Pool owns the shared whisper.cpp model and the set of worker goroutines
// consuming the job queue. Each Subscribe call pins itself to its own OS
// thread via runtime.LockOSThread, matching the "N blocking OS threads"
// contract: whisper.cpp contexts are not safe to share across concurrent
// Process calls, so one thread per in-flight inference is required.
type Pool struct {
	model    whisperlib.Model
	delivery Delivery
	metrics  *observe.Metrics

	mu      sync.Mutex
	workers int
}

// New loads the whisper.cpp model from modelPath and returns a Pool ready to
// Start. The model is process-wide and read-only after construction;
// per-call decoder state is created fresh by each Translate invocation.
func New(modelPath string, delivery Delivery, metrics *observe.Metrics) (*Pool, error) {
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("worker: load model %q: %w", modelPath, err)
	}
	return &Pool{model: model, delivery: delivery, metrics: metrics}, nil
}

// Workers returns the number of worker goroutines started by Start, or 0
// before Start has been called.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Close releases the shared model. Call only after every worker goroutine
// has returned.
func (p *Pool) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// NumWorkers returns n clamped to at least 1, defaulting to
// runtime.NumCPU()/4 when n <= 0, per spec.md's WHISPER_PROCESSES default.
func NumWorkers(n int) int {
	if n > 0 {
		return n
	}
	w := runtime.NumCPU() / 4
	if w < 1 {
		w = 1
	}
	return w
}

// Start spawns n worker goroutines, each subscribing to q. Start returns
// immediately; workers run until q is closed and drained (cancelling ctx
// alone does not stop them). Call Wait on the returned WaitGroup to know
// when all workers have exited.
func (p *Pool) Start(ctx context.Context, q *jobqueue.Queue, validator jobqueue.SessionValidator, n int) *sync.WaitGroup {
	n = NumWorkers(n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		id := i
		go func() {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			lowerPriority()
			slog.Info("worker: starting local inference worker", "worker_id", id)
			jobqueue.Subscribe(q, validator, &translator{pool: p, ctx: ctx})
		}()
	}
	p.mu.Lock()
	p.workers = n
	p.mu.Unlock()
	return &wg
}

// translator adapts Pool to jobqueue.Translator for one worker goroutine.
type translator struct {
	pool *Pool
	ctx  context.Context
}

// Translate runs inference on req's payload and delivers each produced
// segment through the pool's Delivery, per spec.md §4.6.
func (t *translator) Translate(req jobqueue.Request) error {
	start := time.Now()
	segments, err := t.pool.infer(req.Payload, req.SampleRate, req.Language)
	if t.pool.metrics != nil {
		t.pool.metrics.RecordInference(t.ctx, "local", time.Since(start).Seconds())
	}
	if err != nil {
		slog.Error("worker: inference failed", "session_id", req.SessionID, "seq", req.Seq, "error", err)
		if t.pool.metrics != nil {
			t.pool.metrics.RecordSegmentError(t.ctx, "inference")
		}
		segments = []segmentResult{{Text: errorPlaceholder}}
	}

	for i, seg := range segments {
		resp := transcript.Response{
			SequenceNumber: req.Seq,
			SegmentNumber:  i,
			NumSegments:    len(segments),
			SegmentStart:   seg.Start,
			SegmentEnd:     seg.End,
			Text:           seg.Text,
		}
		if derr := t.pool.delivery.Deliver(t.ctx, req.SessionID, resp); derr != nil {
			slog.Warn("worker: delivery failed", "session_id", req.SessionID, "seq", req.Seq, "segment", i, "error", derr)
		}
	}
	return nil
}

// errorPlaceholder substitutes for a segment that could not be transcribed,
// per spec.md §7 taxonomy item 4.
const errorPlaceholder = "<b>error transcribing</b>"

// segmentResult is one produced segment before it is wrapped in a
// transcript.Response. Start/End are milliseconds, matching the remote
// worker's units.
type segmentResult struct {
	Text  string
	Start int64
	End   int64
}

// infer creates a fresh decoder context from the shared model, runs greedy
// best-of-1 sampling over samples at the requested language, and collects
// every produced segment. samples arrive at the session's own sample rate
// and are resampled to 16kHz before being handed to whisper.cpp, matching
// the remote worker's input expectations.
func (p *Pool) infer(samples []float32, sampleRate int, language string) ([]segmentResult, error) {
	if sampleRate > 0 {
		samples = resample.To16kHz(samples, sampleRate)
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("worker: create context: %w", err)
	}

	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			slog.Warn("worker: failed to set language, using model default", "language", language, "error", err)
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("worker: process audio: %w", err)
	}

	var results []segmentResult
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("worker: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		results = append(results, segmentResult{
			Text:  text,
			Start: segment.Start.Milliseconds(),
			End:   segment.End.Milliseconds(),
		})
	}
	if len(results) == 0 {
		results = append(results, segmentResult{Text: ""})
	}
	return results, nil
}

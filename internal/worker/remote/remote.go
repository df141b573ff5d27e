// Package remote implements the alternative translator that forwards
// utterance payloads to an externally hosted inferencer over HTTP, for use
// when WHISPER_SERVER is configured instead of (or alongside) the local
// whisper.cpp pool.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"github.com/johnsnewby/transcriberd/internal/jobqueue"
	"github.com/johnsnewby/transcriberd/internal/observe"
	"github.com/johnsnewby/transcriberd/internal/resample"
	"github.com/johnsnewby/transcriberd/internal/resilience"
	"github.com/johnsnewby/transcriberd/internal/transcript"
)

// Delivery sends a produced segment onward to the owning session.
type Delivery interface {
	Deliver(ctx context.Context, sessionID int64, resp transcript.Response) error
}

// responseSegment is one element of the remote inferencer's JSON response.
type responseSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// inferenceResponse is the full JSON body returned by the remote inferencer.
type inferenceResponse struct {
	Segments []responseSegment `json:"segments"`
	Language string            `json:"language"`
}

// Worker is a Translator that POSTs utterance payloads to a remote
// inferencer. It holds its own HTTP client and runs on a single dedicated,
// elevated-priority OS thread, per spec.
type Worker struct {
	baseURL    string
	httpClient *http.Client
	delivery   Delivery
	metrics    *observe.Metrics
	sourceRate int
	breaker    *resilience.CircuitBreaker
}

// New returns a Worker that will POST to baseURL. sourceRate is a fallback
// PCM sample rate used only when a request does not carry its own
// (jobqueue.Request.SampleRate); pass 0 when every request is expected to
// set it. Payloads are resampled to 16 kHz before being sent, matching the
// local worker pool's input expectations.
//
// Calls to the remote inferencer are guarded by a circuit breaker: five
// consecutive failures trip it, so a dead remote server fails requests
// immediately (as transcription errors) instead of piling up slow HTTP
// timeouts behind every queued utterance.
func New(baseURL string, delivery Delivery, metrics *observe.Metrics, sourceRate int) *Worker {
	return &Worker{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		delivery:   delivery,
		metrics:    metrics,
		sourceRate: sourceRate,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "whisper-remote",
		}),
	}
}

// Run pins the calling goroutine to its OS thread with runtime.LockOSThread,
// raises that thread's scheduling priority, and then subscribes to q on it,
// returning once q is closed and drained.
func (w *Worker) Run(ctx context.Context, q *jobqueue.Queue, validator jobqueue.SessionValidator) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	raisePriority()
	jobqueue.Subscribe(q, validator, &translator{worker: w, ctx: ctx})
}

type translator struct {
	worker *Worker
	ctx    context.Context
}

// Translate resamples req's payload to 16 kHz, POSTs it to the remote
// inferencer, and delivers one Response per returned segment.
func (t *translator) Translate(req jobqueue.Request) error {
	start := time.Now()
	samples := req.Payload
	rate := req.SampleRate
	if rate == 0 {
		rate = t.worker.sourceRate
	}
	if rate > 0 {
		samples = resample.To16kHz(samples, rate)
	}

	resp, err := t.worker.infer(t.ctx, samples, req.Language)
	if t.worker.metrics != nil {
		t.worker.metrics.RecordInference(t.ctx, "remote", time.Since(start).Seconds())
	}
	if err != nil {
		slog.Error("remote: inference failed", "session_id", req.SessionID, "seq", req.Seq, "error", err)
		if t.worker.metrics != nil {
			t.worker.metrics.RecordSegmentError(t.ctx, "inference")
		}
		resp = &inferenceResponse{Segments: []responseSegment{{Text: "<b>error transcribing</b>"}}}
	}

	for i, seg := range resp.Segments {
		out := transcript.Response{
			SequenceNumber: req.Seq,
			SegmentNumber:  0,
			NumSegments:    1,
			SegmentStart:   int64(seg.Start * 1000),
			SegmentEnd:     int64(seg.End * 1000),
			Text:           seg.Text,
		}
		if derr := t.worker.delivery.Deliver(t.ctx, req.SessionID, out); derr != nil {
			slog.Warn("remote: delivery failed", "session_id", req.SessionID, "seq", req.Seq, "segment", i, "error", derr)
		}
	}
	return nil
}

// infer POSTs samples as a JSON float array to <baseURL>?lang=<tag> and
// parses the {segments, language} response, through the worker's circuit
// breaker so a string of failures stops hammering an unreachable server.
func (w *Worker) infer(ctx context.Context, samples []float32, lang string) (*inferenceResponse, error) {
	var result *inferenceResponse
	err := w.breaker.Execute(func() error {
		var innerErr error
		result, innerErr = w.doInfer(ctx, samples, lang)
		return innerErr
	})
	return result, err
}

// doInfer performs the actual HTTP round trip.
func (w *Worker) doInfer(ctx context.Context, samples []float32, lang string) (*inferenceResponse, error) {
	body, err := json.Marshal(samples)
	if err != nil {
		return nil, fmt.Errorf("remote: marshal payload: %w", err)
	}

	u, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: parse server url: %w", err)
	}
	if lang != "" {
		q := u.Query()
		q.Set("lang", lang)
		u.RawQuery = q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("remote: http request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote: server returned HTTP %d", httpResp.StatusCode)
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read response body: %w", err)
	}

	var result inferenceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("remote: parse JSON response: %w", err)
	}
	return &result, nil
}

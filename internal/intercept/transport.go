package intercept

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

var (
	// ErrClosed is returned for calls made after Close, and for jobs still
	// queued when the transport is closed.
	ErrClosed = errors.New("interception queue is closed")
	// ErrRejected wraps the decider error of a rejected job.
	ErrRejected = errors.New("synthesis call rejected")
)

// StatusError reports a non-2xx synthesis response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "HTTP Error: " + e.Status
}

// Deliverer receives completed downloads.
type Deliverer interface {
	Deliver(ctx context.Context, m Message) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, m Message) error

// Deliver calls fn(ctx, m).
func (fn DelivererFunc) Deliver(ctx context.Context, m Message) error { return fn(ctx, m) }

// Guard reports whether a message was already downloaded.
type Guard func(conversationID, messageID string) bool

// Config configures a Transport.
type Config struct {
	// Upstream performs the real network calls. Defaults to
	// http.DefaultTransport.
	Upstream http.RoundTripper
	// Marker is the URL substring identifying synthesis calls.
	Marker    string
	Deliverer Deliverer
	Decider   Decider
	// Resolver supplies message text for names and retry snippets. The
	// lookup happens when a job is dequeued.
	Resolver NameResolver
	Guard    Guard
	// Index, when set, learns message texts from conversation payloads
	// passing through.
	Index *MessageIndex
	// MinInterval spaces out consecutive synthesis dispatches.
	MinInterval time.Duration
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Enqueued     int64
	Delivered    int64
	Retried      int64
	Skipped      int64
	Rejected     int64
	Conflicts    int64
	Pending      int
	InFlight     int
	MaxInFlight  int
	LastDelivery time.Time
}

type result struct {
	resp *http.Response
	err  error
}

type job struct {
	req            *http.Request
	body           []byte
	conversationID string
	messageID      string
	attempt        int
	enqueued       time.Time
	done           chan result
}

// Transport intercepts synthesis calls. Create it with New and release it
// with Close.
type Transport struct {
	upstream  http.RoundTripper
	marker    string
	deliverer Deliverer
	decider   Decider
	resolver  NameResolver
	guard     Guard
	index     *MessageIndex
	limiter   *rate.Limiter

	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []*job
	closed bool
	stats  Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a transport and starts its worker.
func New(cfg Config) *Transport {
	if cfg.Upstream == nil {
		cfg.Upstream = http.DefaultTransport
	}
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
	if cfg.Decider == nil {
		cfg.Decider = PolicyDecider{SkipAlways: true}
	}
	if cfg.Deliverer == nil {
		cfg.Deliverer = DelivererFunc(func(context.Context, Message) error { return nil })
	}
	if cfg.Resolver == nil && cfg.Index != nil {
		cfg.Resolver = cfg.Index
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		upstream:  cfg.Upstream,
		marker:    cfg.Marker,
		deliverer: cfg.Deliverer,
		decider:   cfg.Decider,
		resolver:  cfg.Resolver,
		guard:     cfg.Guard,
		index:     cfg.Index,
		ctx:       ctx,
		cancel:    cancel,
	}
	if cfg.MinInterval > 0 {
		t.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	t.cond = sync.NewCond(&t.mu)

	t.wg.Add(1)
	go t.work()
	return t
}

// Matches reports whether req is a synthesis call.
func (t *Transport) Matches(req *http.Request) bool {
	return req.URL != nil && strings.Contains(req.URL.String(), t.marker)
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.Matches(req) {
		return t.passThrough(req)
	}

	conversationID, messageID := ParseIDs(req.URL)
	if t.guard != nil && messageID != "" && t.guard(conversationID, messageID) {
		t.mu.Lock()
		t.stats.Conflicts++
		t.mu.Unlock()
		log.Debug("Synthesis already downloaded", "conversation", conversationID, "message", messageID)
		return emptyResponse(req, http.StatusConflict), nil
	}

	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	j := &job{
		req:            req,
		body:           body,
		conversationID: conversationID,
		messageID:      messageID,
		enqueued:       time.Now(),
		done:           make(chan result, 1),
	}
	if err := t.enqueue(j); err != nil {
		return nil, err
	}

	select {
	case r := <-j.done:
		return r.resp, r.err
	case <-req.Context().Done():
		// The job stays queued; its download still lands in the store.
		return nil, req.Context().Err()
	}
}

func (t *Transport) enqueue(j *job) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	t.jobs = append(t.jobs, j)
	t.stats.Enqueued++
	t.stats.Pending = len(t.jobs)
	t.cond.Signal()

	log.Debug("Synthesis queued", "conversation", j.conversationID, "message", j.messageID, "pending", len(t.jobs))
	return nil
}

// next blocks until a job is available and marks it in flight. It returns
// nil once the transport is closed.
func (t *Transport) next() *job {
	t.mu.Lock()
	defer t.mu.Unlock()

	for len(t.jobs) == 0 && !t.closed {
		t.cond.Wait()
	}
	if t.closed {
		return nil
	}

	j := t.jobs[0]
	t.jobs = t.jobs[1:]
	t.stats.Pending = len(t.jobs)
	t.stats.InFlight++
	t.stats.MaxInFlight = max(t.stats.MaxInFlight, t.stats.InFlight)
	return j
}

// finish ends the in-flight phase of a job. A retried job goes back to the
// head of the queue before anything else can be dequeued.
func (t *Transport) finish(j *job, retry bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.InFlight--
	if retry {
		if t.closed {
			j.done <- result{err: ErrClosed}
			return
		}
		t.jobs = append([]*job{j}, t.jobs...)
		t.stats.Pending = len(t.jobs)
		t.stats.Retried++
	}
}

func (t *Transport) work() {
	defer t.wg.Done()

	for {
		j := t.next()
		if j == nil {
			return
		}
		if t.limiter != nil {
			if err := t.limiter.Wait(t.ctx); err != nil {
				t.finish(j, false)
				j.done <- result{err: ErrClosed}
				return
			}
		}
		t.process(j)
	}
}

func (t *Transport) process(j *job) {
	j.attempt++

	resp, data, err := t.fetch(j)
	if err != nil {
		t.fail(j, err)
		return
	}

	msg := Message{
		ConversationID: j.conversationID,
		MessageID:      j.messageID,
		AudioData:      DataURL(resp.Header.Get("Content-Type"), data),
		Name:           t.name(j.messageID),
		QueueLength:    t.Len(),
	}
	if err := t.deliverer.Deliver(t.ctx, msg); err != nil {
		log.Warn("Delivery failed", "conversation", j.conversationID, "message", j.messageID, "error", err)
	}

	t.mu.Lock()
	t.stats.Delivered++
	t.stats.LastDelivery = time.Now()
	t.mu.Unlock()

	log.Info("Synthesis delivered",
		"conversation", j.conversationID,
		"message", j.messageID,
		"bytes", len(data),
		"attempt", j.attempt,
		"waited", time.Since(j.enqueued).Round(time.Millisecond),
	)

	t.finish(j, false)
	j.done <- result{resp: resp}
}

// fetch performs the upstream call and buffers the body. The returned
// response carries the same bytes for the original caller.
func (t *Transport) fetch(j *job) (*http.Response, []byte, error) {
	req := j.req.Clone(t.ctx)
	if j.body != nil {
		req.Body = io.NopCloser(bytes.NewReader(j.body))
		req.ContentLength = int64(len(j.body))
	}

	resp, err := t.upstream.RoundTrip(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read synthesis body: %w", err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(data))
	resp.ContentLength = int64(len(data))
	resp.Header.Del("Content-Encoding")
	resp.Request = j.req
	return resp, data, nil
}

func (t *Transport) fail(j *job, cause error) {
	log.Warn("Synthesis failed", "conversation", j.conversationID, "message", j.messageID, "attempt", j.attempt, "error", cause)

	decision, err := t.decider.Decide(t.ctx, Failure{
		ConversationID: j.conversationID,
		MessageID:      j.messageID,
		Snippet:        t.snippet(j.messageID),
		Err:            cause,
		Attempt:        j.attempt,
	})
	if err != nil {
		log.Error("Could not obtain retry decision", "message", j.messageID, "error", err)
		t.mu.Lock()
		t.stats.Rejected++
		t.mu.Unlock()
		t.finish(j, false)
		j.done <- result{err: fmt.Errorf("%w: %w", ErrRejected, err)}
		return
	}

	switch decision {
	case Retry:
		log.Info("Retrying synthesis", "message", j.messageID, "attempt", j.attempt)
		t.finish(j, true)
	default:
		log.Info("Skipping synthesis", "message", j.messageID)
		t.mu.Lock()
		t.stats.Skipped++
		t.mu.Unlock()
		t.finish(j, false)
		j.done <- result{resp: emptyResponse(j.req, http.StatusNoContent)}
	}
}

func (t *Transport) name(messageID string) string {
	if t.resolver != nil {
		if text, ok := t.resolver.MessageText(messageID); ok && text != "" {
			return truncate(text, snippetLength)
		}
	}
	return UnknownName
}

func (t *Transport) snippet(messageID string) string {
	if t.resolver != nil {
		if text, ok := t.resolver.MessageText(messageID); ok && text != "" {
			return truncate(text, snippetLength)
		}
	}
	return UnknownSnippet
}

// passThrough forwards non-synthesis calls, feeding conversation payloads to
// the message index on the way.
func (t *Transport) passThrough(req *http.Request) (*http.Response, error) {
	resp, err := t.upstream.RoundTrip(req)
	if err != nil || t.index == nil || !isConversationPayload(req, resp) {
		return resp, err
	}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read conversation body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))

	if err := t.index.ObserveConversation(data); err != nil {
		log.Debug("Could not index conversation", "url", req.URL.Path, "error", err)
	}
	return resp, nil
}

func isConversationPayload(req *http.Request, resp *http.Response) bool {
	return req.Method == http.MethodGet &&
		strings.Contains(req.URL.Path, "/backend-api/conversation/") &&
		resp.StatusCode == http.StatusOK &&
		strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") &&
		resp.Header.Get("Content-Encoding") == ""
}

// Len returns the number of queued jobs, excluding the one in flight.
func (t *Transport) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// Stats returns a snapshot of the queue counters.
func (t *Transport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.Pending = len(t.jobs)
	return s
}

// Close stops the worker and fails every queued job with ErrClosed. The job in
// flight is aborted and rejected.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	pending := t.jobs
	t.jobs = nil
	t.cond.Broadcast()
	t.mu.Unlock()

	t.cancel()
	for _, j := range pending {
		j.done <- result{err: ErrClosed}
	}
	t.wg.Wait()
	return nil
}

func emptyResponse(req *http.Request, code int) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", code, http.StatusText(code)),
		StatusCode:    code,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		Body:          http.NoBody,
		ContentLength: 0,
		Request:       req,
	}
}

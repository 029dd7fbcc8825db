package pinagent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pinai-network/agent-sdk-go/dispatch"
	xerrors "github.com/pinai-network/agent-sdk-go/pkg/errors"
	"github.com/pinai-network/agent-sdk-go/pkg/logger"
	"github.com/pinai-network/agent-sdk-go/state"
)

// DefaultPollInterval is the pause between successive polls.
const DefaultPollInterval = time.Second

// Handler is invoked once per new message, on the poller's goroutine, in
// ascending created_at order.
type Handler func(ctx context.Context, msg Message)

// Poller repeatedly fetches messages newer than its watermark and hands them
// to the handler. The watermark only ever moves forward, to the maximum
// created_at of the last non-empty batch.
type Poller struct {
	client   *Client
	agentID  int64
	handler  Handler
	interval time.Duration
	store    state.Store
	queue    dispatch.Queue
	log      *slog.Logger

	mu        sync.Mutex
	watermark string
	sessionID string
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval overrides the polling interval.
func WithInterval(interval time.Duration) PollerOption {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithStateStore persists the watermark so a restarted agent resumes where it
// stopped instead of at the current time.
func WithStateStore(store state.Store) PollerOption {
	return func(p *Poller) {
		p.store = store
	}
}

// WithDispatchQueue publishes message JSON to the queue instead of invoking
// the handler inline. Pair it with ConsumeMessages.
func WithDispatchQueue(queue dispatch.Queue) PollerOption {
	return func(p *Poller) {
		p.queue = queue
	}
}

// WithInitialWatermark anchors the first poll at the given timestamp.
func WithInitialWatermark(ts string) PollerOption {
	return func(p *Poller) {
		p.watermark = ts
	}
}

// WithPollerLogger replaces the default component logger.
func WithPollerLogger(log *slog.Logger) PollerOption {
	return func(p *Poller) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPoller builds a poller for one agent. The handler may be nil when a
// dispatch queue is configured.
func NewPoller(client *Client, agentID int64, handler Handler, opts ...PollerOption) *Poller {
	p := &Poller{
		client:   client,
		agentID:  agentID,
		handler:  handler,
		interval: DefaultPollInterval,
		log:      logger.Named("poller"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start launches the polling loop on its own goroutine. The loop stops when
// ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	loopCtx, err := p.begin(ctx)
	if err != nil {
		return err
	}
	go p.loop(loopCtx)
	return nil
}

// Run executes the polling loop on the calling goroutine until ctx is
// cancelled or Stop is called from elsewhere.
func (p *Poller) Run(ctx context.Context) error {
	loopCtx, err := p.begin(ctx)
	if err != nil {
		return err
	}
	p.loop(loopCtx)
	return nil
}

func (p *Poller) begin(ctx context.Context) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil, xerrors.New(xerrors.CodeConflict, "poller already running")
	}
	if p.client == nil || p.agentID == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "poller needs a client and an agent id")
	}
	if p.handler == nil && p.queue == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "poller needs a handler or a dispatch queue")
	}

	if p.watermark == "" {
		p.watermark = p.restoreWatermark(ctx)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.log.Info("poller started",
		slog.Int64("agent_id", p.agentID),
		slog.String("watermark", p.watermark),
		slog.Duration("interval", p.interval))
	return loopCtx, nil
}

// restoreWatermark prefers the persisted record and falls back to now.
func (p *Poller) restoreWatermark(ctx context.Context) string {
	if p.store != nil {
		rec, err := p.store.Load(ctx, p.agentID)
		switch {
		case err == nil && rec.Watermark != "":
			p.sessionID = rec.SessionID
			return rec.Watermark
		case err != nil && !errors.Is(err, state.ErrNotFound):
			p.log.Warn("loading persisted watermark failed, anchoring at now",
				slog.Int64("agent_id", p.agentID),
				slog.Any("error", err))
		}
	}
	return time.Now().UTC().Format(TimestampLayout)
}

// Stop cancels the loop and waits for it to exit. Once Stop returns, no
// further handler invocation happens for this run.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.log.Info("poller stopped", slog.Int64("agent_id", p.agentID))
}

// Watermark returns the current watermark timestamp.
func (p *Poller) Watermark() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// SessionID returns the session of the most recently seen message.
func (p *Poller) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Reply sends a message on behalf of the agent. When the request carries no
// session id it defaults to the session of the most recently polled message.
func (p *Poller) Reply(ctx context.Context, req SendMessageRequest) (*Message, error) {
	if req.SessionID == "" {
		req.SessionID = p.SessionID()
	}
	if req.SessionID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "no session id given and no message polled yet")
	}
	return p.client.SendMessage(ctx, p.agentID, req)
}

func (p *Poller) loop(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		close(p.done)
	}()
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		p.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		timer.Reset(p.interval)
	}
}

// pollOnce performs a single fetch-dispatch-advance cycle. Failures leave the
// watermark untouched and are retried on the next tick.
func (p *Poller) pollOnce(ctx context.Context) {
	p.mu.Lock()
	since := p.watermark
	p.mu.Unlock()

	messages, err := p.client.PollMessages(ctx, p.agentID, since)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logPollError(err)
		return
	}
	if len(messages) == 0 {
		return
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt < messages[j].CreatedAt
	})

	watermark := since
	sessionID := ""
	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		if msg.CreatedAt > watermark {
			watermark = msg.CreatedAt
		}
		if msg.SessionID != "" {
			sessionID = msg.SessionID
		}
		p.deliver(ctx, msg)
	}

	p.mu.Lock()
	if watermark > p.watermark {
		p.watermark = watermark
	}
	if sessionID != "" {
		p.sessionID = sessionID
	}
	watermark = p.watermark
	sessionID = p.sessionID
	p.mu.Unlock()

	p.persist(ctx, watermark, sessionID)
}

func (p *Poller) deliver(ctx context.Context, msg Message) {
	if p.queue != nil {
		payload, err := json.Marshal(msg)
		if err != nil {
			p.log.Error("encoding message for dispatch failed",
				slog.Int64("message_id", msg.ID),
				slog.Any("error", err))
			return
		}
		if err := p.queue.Publish(ctx, payload); err != nil {
			p.log.Error("publishing message to dispatch queue failed",
				slog.Int64("message_id", msg.ID),
				slog.Any("error", err))
		}
		return
	}
	p.handler(ctx, msg)
}

func (p *Poller) persist(ctx context.Context, watermark, sessionID string) {
	if p.store == nil {
		return
	}
	rec := state.Record{Watermark: watermark, SessionID: sessionID}
	if err := p.store.Save(ctx, p.agentID, rec); err != nil {
		p.log.Warn("persisting watermark failed",
			slog.Int64("agent_id", p.agentID),
			slog.Any("error", err))
	}
}

func (p *Poller) logPollError(err error) {
	attrs := []any{
		slog.Int64("agent_id", p.agentID),
		slog.Any("error", err),
		slog.String("error_code", string(xerrors.CodeOf(err))),
	}
	if xerrors.SeverityOf(err) == xerrors.SeverityCritical {
		p.log.Error("polling messages failed", attrs...)
		return
	}
	p.log.Warn("polling messages failed, will retry", attrs...)
}

// ConsumeMessages runs a worker pool over a dispatch queue, decoding each
// payload back into a Message and invoking the handler. It blocks until ctx
// is cancelled.
func ConsumeMessages(ctx context.Context, queue dispatch.Queue, workers int, handler Handler) error {
	if queue == nil || handler == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "queue and handler are required")
	}
	return queue.Consume(ctx, workers, func(ctx context.Context, payload []byte) error {
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return xerrors.Wrap(xerrors.CodeQueueFailure, err, "decode queued message")
		}
		handler(ctx, msg)
		return nil
	})
}

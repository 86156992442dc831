// Package pipeline runs webhook events through admission and reply dispatch.
//
// Admission is synchronous and decides the HTTP response: rate limit,
// signature, payload shape, then the dedup gate. Admitted events are queued
// and the caller is acknowledged at once. Workers then check for a mention,
// compose a reply and dispatch it. Nothing that happens after the
// acknowledgement reaches the original caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/dayuer/castbot/internal/bus"
	"github.com/dayuer/castbot/internal/compose"
	"github.com/dayuer/castbot/internal/dedup"
	"github.com/dayuer/castbot/internal/dispatch"
	"github.com/dayuer/castbot/internal/mention"
	"github.com/dayuer/castbot/internal/ratelimit"
	"github.com/dayuer/castbot/internal/signature"
)

// Request is one inbound webhook delivery.
type Request struct {
	Caller    string // client identity used for rate limiting
	Body      []byte // raw, unparsed body
	Signature string // signature header value
}

// Admission is the outcome of the synchronous phase.
type Admission struct {
	State      State
	TaskID     string
	Key        string
	RetryAfter int64 // seconds, set when rate limited
}

// Options wires a Pipeline. Verifier and Cooldown may be nil.
type Options struct {
	Limiter    ratelimit.Limiter
	Verifier   *signature.Verifier
	Dedup      dedup.Store
	Cooldown   dedup.Store
	Detector   *mention.Detector
	Composer   *compose.Composer
	Dispatcher *dispatch.Dispatcher

	KeyMode   KeyMode
	React     bool
	Workers   int
	QueueSize int
	Logger    *slog.Logger
}

// Pipeline is the webhook ingestion state machine.
type Pipeline struct {
	limiter    ratelimit.Limiter
	verifier   *signature.Verifier
	dedup      dedup.Store
	cooldown   dedup.Store
	detector   *mention.Detector
	composer   *compose.Composer
	dispatcher *dispatch.Dispatcher
	queue      *bus.Queue

	keyMode KeyMode
	react   bool
	workers int
	logger  *slog.Logger

	counts   [numStates]atomic.Int64
	internal atomic.Int64
}

// New creates a Pipeline. Call Start to begin processing admitted events.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Limiter == nil:
		return nil, errors.New("pipeline: rate limiter is required")
	case opts.Dedup == nil:
		return nil, errors.New("pipeline: dedup store is required")
	case opts.Detector == nil:
		return nil, errors.New("pipeline: mention detector is required")
	case opts.Composer == nil:
		return nil, errors.New("pipeline: composer is required")
	case opts.Dispatcher == nil:
		return nil, errors.New("pipeline: dispatcher is required")
	}
	if opts.KeyMode == "" {
		opts.KeyMode = KeyHash
	}
	if opts.KeyMode != KeyHash && opts.KeyMode != KeyComposite {
		return nil, fmt.Errorf("pipeline: unknown key mode %q", opts.KeyMode)
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Pipeline{
		limiter:    opts.Limiter,
		verifier:   opts.Verifier,
		dedup:      opts.Dedup,
		cooldown:   opts.Cooldown,
		detector:   opts.Detector,
		composer:   opts.Composer,
		dispatcher: opts.Dispatcher,
		queue:      bus.NewQueue(opts.QueueSize),
		keyMode:    opts.KeyMode,
		react:      opts.React,
		workers:    opts.Workers,
		logger:     opts.Logger.With("component", "pipeline"),
	}
	if !p.verifying() {
		p.logger.Warn("Pipeline.New: webhook secret not configured, signatures will NOT be verified")
	}
	return p, nil
}

func (p *Pipeline) verifying() bool {
	return p.verifier != nil && p.verifier.Enabled()
}

// Start launches the worker pool. ctx is handed to every task; it should
// outlive the HTTP server so queued replies can finish during shutdown.
func (p *Pipeline) Start(ctx context.Context) {
	p.queue.Run(ctx, p.workers, p.handle)
	p.logger.Info("Pipeline.Start: workers started", "workers", p.workers, "queue", p.queue.Cap())
}

// Shutdown stops accepting events and waits for queued ones to finish.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.queue.Close()
	if err := p.queue.Wait(ctx); err != nil {
		p.logger.Warn("Pipeline.Shutdown: tasks still running", "inflight", p.queue.InFlight(), "queued", p.queue.Size())
		return fmt.Errorf("pipeline: shutdown: %w", err)
	}
	return nil
}

// Admit runs the synchronous phase for one delivery.
func (p *Pipeline) Admit(ctx context.Context, req Request) (Admission, error) {
	decision, err := p.limiter.Allow(ctx, req.Caller)
	if err != nil {
		return p.fail(fmt.Errorf("pipeline: rate limiter: %w", err))
	}
	if !decision.Allowed {
		p.record(StateRejectedRate)
		p.logger.Warn("Pipeline.Admit: rate limited", "caller", req.Caller, "count", decision.Count)
		return Admission{
				State:      StateRejectedRate,
				RetryAfter: ceilSeconds(decision.RetryAfter.Seconds()),
			},
			&RateLimitError{RetryAfter: decision.RetryAfter}
	}

	if p.verifying() {
		if err := p.verifier.Verify(req.Body, req.Signature); err != nil {
			p.record(StateRejectedAuth)
			p.logger.Warn("Pipeline.Admit: signature rejected", "caller", req.Caller, "err", err)
			return Admission{State: StateRejectedAuth}, fmt.Errorf("%w: %w", ErrAuthentication, err)
		}
	}

	ev, err := ParseEvent(req.Body)
	if err != nil {
		p.record(StateRejectedShape)
		p.logger.Warn("Pipeline.Admit: payload rejected", "caller", req.Caller, "err", err)
		return Admission{State: StateRejectedShape}, err
	}

	key := DedupKey(ev, p.keyMode)
	ok, err := p.dedup.Admit(ctx, key)
	if err != nil {
		return p.fail(fmt.Errorf("pipeline: dedup admit: %w", err))
	}
	if !ok {
		p.record(StateRejectedDuplicate)
		p.logger.Debug("Pipeline.Admit: duplicate delivery", "key", key)
		return Admission{State: StateRejectedDuplicate, Key: key}, ErrDuplicateEvent
	}

	task, err := p.queue.Publish(key, ev)
	if err != nil {
		// The event never reached a worker, so a redelivery must be admissible.
		if relErr := p.dedup.Release(ctx, key); relErr != nil {
			p.logger.Error("Pipeline.Admit: release after enqueue failure", "key", key, "err", relErr)
		}
		return p.fail(fmt.Errorf("pipeline: enqueue %s: %w", key, err))
	}

	p.record(StateAcknowledged)
	p.logger.Info("Pipeline.Admit: accepted", "task", task.ID, "key", key, "author", ev.AuthorHandle)
	return Admission{State: StateAcknowledged, TaskID: task.ID, Key: key}, nil
}

func (p *Pipeline) fail(err error) (Admission, error) {
	p.internal.Add(1)
	p.logger.Error("Pipeline.Admit: internal error", "err", err)
	return Admission{State: StateReceived}, err
}

func (p *Pipeline) handle(ctx context.Context, t bus.Task) {
	p.Process(ctx, t)
}

// Process runs the asynchronous phase for one admitted task and returns
// its terminal state.
func (p *Pipeline) Process(ctx context.Context, t bus.Task) State {
	state := p.process(ctx, t)
	p.record(state)
	return state
}

func (p *Pipeline) process(ctx context.Context, t bus.Task) State {
	ev := t.Event
	log := p.logger.With("task", t.ID, "key", t.Key)

	if !p.detector.IsMentioned(mentionEvent(ev)) {
		log.Debug("Pipeline.Process: not addressed to bot", "author", ev.AuthorHandle)
		return StateIgnoredNotMentioned
	}

	if p.cooldown != nil && ev.AuthorFID != 0 {
		ok, err := p.cooldown.Admit(ctx, "cooldown:"+strconv.FormatUint(ev.AuthorFID, 10))
		switch {
		case err != nil:
			log.Warn("Pipeline.Process: cooldown check failed, replying anyway", "err", err)
		case !ok:
			log.Info("Pipeline.Process: author in cooldown", "author", ev.AuthorHandle, "fid", ev.AuthorFID)
			return StateIgnoredCooldown
		}
	}

	reply, err := p.composer.Compose(ctx, compose.Input{Text: ev.Text, AuthorHandle: ev.AuthorHandle})
	if err != nil {
		log.Warn("Pipeline.Process: generation failed, sending fallback", "err", err)
	}

	p.record(StateDispatched)
	if p.react {
		if res := p.dispatcher.React(ctx, ev.CastHash); !res.OK() {
			log.Warn("Pipeline.Process: reaction failed", "attempts", res.Attempts, "err", res.Err)
		}
	}

	res, err := p.dispatcher.Reply(ctx, ev.CastHash, ev.AuthorHandle, reply.Text)
	if err != nil {
		log.Error("Pipeline.Process: reply failed", "cast", ev.CastHash, "attempts", res.Attempts, "err", err)
		return StateFailed
	}
	log.Info("Pipeline.Process: replied", "cast", ev.CastHash, "reply", res.Hash, "fallback", reply.Fallback)
	return StateDone
}

func (p *Pipeline) record(s State) {
	p.counts[s].Add(1)
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	States         map[string]int64 `json:"states"`
	InternalErrors int64            `json:"internal_errors"`
	QueueDepth     int              `json:"queue_depth"`
	QueueCap       int              `json:"queue_cap"`
	InFlight       int64            `json:"in_flight"`
	Handled        int64            `json:"handled"`
	Verifying      bool             `json:"verifying"`
}

// Stats returns counters for every state that has been reached.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		States:         make(map[string]int64),
		InternalErrors: p.internal.Load(),
		QueueDepth:     p.queue.Size(),
		QueueCap:       p.queue.Cap(),
		InFlight:       p.queue.InFlight(),
		Handled:        p.queue.Handled(),
		Verifying:      p.verifying(),
	}
	for i := range p.counts {
		if n := p.counts[i].Load(); n > 0 {
			s.States[State(i).String()] = n
		}
	}
	return s
}

func ceilSeconds(s float64) int64 {
	n := int64(s)
	if float64(n) < s {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Package dispatch delivers reactions and replies to the social platform
// with bounded retry and exponential backoff.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = time.Second
)

const (
	OpReact = "react"
	OpReply = "reply"
)

// Publisher is the upstream platform API.
type Publisher interface {
	PublishReaction(ctx context.Context, target string) error
	PublishReply(ctx context.Context, parent, text string) (string, error)
}

// DeliveryError is returned once every attempt of an operation has failed.
type DeliveryError struct {
	Op       string
	Target   string
	Attempts int
	Err      error // last upstream error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("dispatch: %s %s failed after %d attempts: %v", e.Op, e.Target, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Result describes one dispatched operation.
type Result struct {
	Op       string
	Target   string
	Attempts int
	Hash     string // hash of the published reply, if any
	Text     string // text actually sent for replies
	Err      error  // *DeliveryError on failure
}

// OK reports whether the operation eventually succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Options configures a Dispatcher.
type Options struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Logger      *slog.Logger
	// Sleep waits between attempts. Tests replace it to avoid real waits.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Dispatcher wraps a Publisher with retry.
type Dispatcher struct {
	pub         Publisher
	maxAttempts int
	baseBackoff time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// New creates a Dispatcher.
func New(pub Publisher, opts Options) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = DefaultBaseBackoff
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepWithContext
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		pub:         pub,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		sleep:       opts.Sleep,
		logger:      opts.Logger.With("component", "dispatch"),
	}
}

// React likes target. The outcome is reported, never returned as an error:
// a failed like must not stop the reply that follows it.
func (d *Dispatcher) React(ctx context.Context, target string) Result {
	res := Result{Op: OpReact, Target: target}
	res.Attempts, res.Err = d.retry(ctx, OpReact, target, func() error {
		return d.pub.PublishReaction(ctx, target)
	})
	return res
}

// Reply publishes body as a reply to target, addressed to author.
func (d *Dispatcher) Reply(ctx context.Context, target, author, body string) (Result, error) {
	text := AddressTo(author, body)
	res := Result{Op: OpReply, Target: target, Text: text}
	res.Attempts, res.Err = d.retry(ctx, OpReply, target, func() error {
		hash, err := d.pub.PublishReply(ctx, target, text)
		if err != nil {
			return err
		}
		res.Hash = hash
		return nil
	})
	return res, res.Err
}

func (d *Dispatcher) retry(ctx context.Context, op, target string, call func() error) (int, error) {
	var lastErr error
	backoff := d.baseBackoff
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return attempt, nil
		}
		d.logger.Warn("Dispatcher.retry: attempt failed",
			"op", op, "target", target, "attempt", attempt, "max", d.maxAttempts, "err", lastErr)

		if attempt == d.maxAttempts {
			break
		}
		if err := d.sleep(ctx, backoff); err != nil {
			return attempt, &DeliveryError{Op: op, Target: target, Attempts: attempt, Err: errors.Join(lastErr, err)}
		}
		backoff *= 2
	}
	return d.maxAttempts, &DeliveryError{Op: op, Target: target, Attempts: d.maxAttempts, Err: lastErr}
}

// AddressTo prefixes body with "@author " unless it already starts with that
// mention. Matching is case-insensitive and the mention must end at
// whitespace or the end of body.
func AddressTo(author, body string) string {
	author = strings.TrimPrefix(strings.TrimSpace(author), "@")
	if author == "" {
		return body
	}
	mention := "@" + author
	if hasMention(body, mention) {
		return body
	}
	if body == "" {
		return mention
	}
	return mention + " " + body
}

func hasMention(body, mention string) bool {
	if len(body) < len(mention) || !strings.EqualFold(body[:len(mention)], mention) {
		return false
	}
	if len(body) == len(mention) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(body[len(mention):])
	return unicode.IsSpace(r)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package compose turns an inbound cast into reply text.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dayuer/castbot/internal/mention"
	"github.com/dayuer/castbot/internal/providers"
)

// CastLimit is the platform's maximum cast length in characters.
const CastLimit = 320

const (
	DefaultFallbackReply  = "Thanks for the mention! I'm having trouble thinking right now, try me again soon."
	DefaultGreetingPrompt = "Someone mentioned you without saying anything else. Greet them briefly."
	DefaultSystemPrompt   = "You are a friendly Farcaster bot. Reply in one or two short sentences."
)

// ErrGeneration marks a reply built from the fallback text because the
// generator failed or returned nothing.
var ErrGeneration = errors.New("compose: generation failed")

// Input is the part of a cast the composer needs.
type Input struct {
	Text         string
	AuthorHandle string
}

// Reply is composed reply text ready for dispatch.
type Reply struct {
	Text      string
	Fallback  bool
	Truncated bool
}

// Options configures a Composer.
type Options struct {
	SystemPrompt   string
	GreetingPrompt string
	FallbackReply  string
	Marker         string // appended to every reply when missing
	MaxChars       int
	Logger         *slog.Logger
}

// Composer generates, bounds and marks reply text.
type Composer struct {
	gen    providers.Generator
	opts   Options
	logger *slog.Logger
}

// New creates a Composer.
func New(gen providers.Generator, opts Options) *Composer {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.GreetingPrompt == "" {
		opts.GreetingPrompt = DefaultGreetingPrompt
	}
	if opts.FallbackReply == "" {
		opts.FallbackReply = DefaultFallbackReply
	}
	if opts.MaxChars <= 0 || opts.MaxChars > CastLimit {
		opts.MaxChars = CastLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Composer{gen: gen, opts: opts, logger: opts.Logger.With("component", "compose")}
}

// Compose writes a reply to in. When generation fails the fallback text is
// returned together with an error wrapping ErrGeneration; the reply is
// usable either way.
func (c *Composer) Compose(ctx context.Context, in Input) (Reply, error) {
	prompt := mention.StripMentions(in.Text)
	if prompt == "" {
		prompt = c.opts.GreetingPrompt
	}

	var genErr error
	text, err := c.gen.Generate(ctx, providers.GenerateRequest{System: c.opts.SystemPrompt, Prompt: prompt})
	switch {
	case err != nil:
		genErr = fmt.Errorf("%w: %w", ErrGeneration, err)
	case strings.TrimSpace(text) == "":
		genErr = fmt.Errorf("%w: empty completion", ErrGeneration)
	}

	reply := Reply{}
	if genErr != nil {
		c.logger.Warn("Composer.Compose: using fallback reply", "author", in.AuthorHandle, "err", genErr)
		text = c.opts.FallbackReply
		reply.Fallback = true
	}

	text = strings.TrimSpace(c.stripMarker(text))
	budget := c.Budget(in.AuthorHandle)
	text, reply.Truncated = Truncate(text, budget)
	reply.Text = c.withMarker(text)
	return reply, genErr
}

// Budget is the number of characters left for the body once the
// "@author " prefix and the marker are accounted for.
func (c *Composer) Budget(author string) int {
	n := c.opts.MaxChars
	if author = strings.TrimPrefix(author, "@"); author != "" {
		n -= utf8.RuneCountInString(author) + 2
	}
	if c.opts.Marker != "" {
		n -= utf8.RuneCountInString(c.opts.Marker) + 1
	}
	if n < 0 {
		return 0
	}
	return n
}

func (c *Composer) stripMarker(text string) string {
	if c.opts.Marker == "" {
		return text
	}
	return strings.TrimSuffix(strings.TrimSpace(text), c.opts.Marker)
}

func (c *Composer) withMarker(text string) string {
	if c.opts.Marker == "" {
		return text
	}
	if text == "" {
		return c.opts.Marker
	}
	return text + " " + c.opts.Marker
}

// Truncate bounds text to max runes, cutting at the last word boundary when
// one is close and ending with an ellipsis. It reports whether it cut.
func Truncate(text string, max int) (string, bool) {
	if utf8.RuneCountInString(text) <= max {
		return text, false
	}
	if max <= 1 {
		return "", true
	}
	runes := []rune(text)
	cut := string(runes[:max-1])
	if !unicode.IsSpace(runes[max-1]) {
		if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
			cut = cut[:i]
		}
	}
	return strings.TrimRight(cut, " \n\t.,;:") + "…", true
}

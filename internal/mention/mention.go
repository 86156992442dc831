// Package mention decides whether a cast is addressed to the bot.
package mention

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Identity is the bot's own account.
type Identity struct {
	Handle string
	FID    uint64
}

// Event is the subset of a cast the detector looks at.
type Event struct {
	AuthorHandle     string
	AuthorFID        uint64
	Text             string
	MentionedHandles []string
	MentionedFIDs    []uint64
}

// Detector matches events against a bot identity.
type Detector struct {
	bot    Identity
	handle string
	fid    string
}

// NewDetector creates a Detector. A leading "@" on the handle is ignored.
func NewDetector(bot Identity) *Detector {
	bot.Handle = strings.TrimPrefix(strings.TrimSpace(bot.Handle), "@")
	d := &Detector{bot: bot, handle: bot.Handle}
	if bot.FID != 0 {
		d.fid = strconv.FormatUint(bot.FID, 10)
	}
	return d
}

// Identity returns the normalized bot identity.
func (d *Detector) Identity() Identity { return d.bot }

// IsSelf reports whether the event was authored by the bot.
func (d *Detector) IsSelf(ev Event) bool {
	if d.bot.FID != 0 && ev.AuthorFID == d.bot.FID {
		return true
	}
	author := strings.TrimPrefix(ev.AuthorHandle, "@")
	return d.handle != "" && strings.EqualFold(author, d.handle)
}

// IsMentioned reports whether ev addresses the bot. The bot's own casts are
// never mentions, whatever their text says.
func (d *Detector) IsMentioned(ev Event) bool {
	if d.IsSelf(ev) {
		return false
	}
	return d.inText(ev.Text) || d.inHandles(ev.MentionedHandles) || d.inFIDs(ev.MentionedFIDs)
}

func (d *Detector) inText(text string) bool {
	if d.handle == "" {
		return false
	}
	handle := strings.ToLower(d.handle)
	for _, tok := range strings.Fields(text) {
		tok = strings.TrimLeftFunc(tok, func(r rune) bool {
			return r != '@' && (unicode.IsPunct(r) || unicode.IsSymbol(r))
		})
		tok = strings.ToLower(strings.TrimPrefix(tok, "@"))
		if rest, ok := strings.CutPrefix(tok, handle); ok && atHandleEnd(rest) {
			return true
		}
	}
	return false
}

func (d *Detector) inHandles(handles []string) bool {
	for _, h := range handles {
		h = strings.TrimPrefix(strings.TrimSpace(h), "@")
		if h == "" {
			continue
		}
		if d.handle != "" && strings.EqualFold(h, d.handle) {
			return true
		}
		if d.fid != "" && h == d.fid {
			return true
		}
	}
	return false
}

func (d *Detector) inFIDs(fids []uint64) bool {
	if d.bot.FID == 0 {
		return false
	}
	for _, fid := range fids {
		if fid == d.bot.FID {
			return true
		}
	}
	return false
}

// atHandleEnd reports whether rest, the token text after a matched handle,
// starts outside the handle: "'s", ")!", "/@x" and a trailing "." do,
// while "fan", "-x" and ".eth" continue a longer name.
func atHandleEnd(rest string) bool {
	if rest == "" {
		return true
	}
	r, size := utf8.DecodeRuneInString(rest)
	if r == '.' {
		next, _ := utf8.DecodeRuneInString(rest[size:])
		return !unicode.IsLetter(next) && !unicode.IsDigit(next)
	}
	return !isHandleRune(r)
}

func isHandleRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'
}

// StripMentions removes every @handle token from text and collapses the
// remaining whitespace to single spaces.
func StripMentions(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if isMentionToken(f) {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func isMentionToken(tok string) bool {
	tok = strings.TrimLeftFunc(tok, func(r rune) bool {
		return r != '@' && unicode.IsPunct(r)
	})
	return len(tok) > 1 && tok[0] == '@'
}

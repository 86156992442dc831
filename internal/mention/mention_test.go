package mention

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var bot = Identity{Handle: "castbot", FID: 4242}

func TestIsMentioned_SelfLoopWins(t *testing.T) {
	d := NewDetector(bot)

	tests := []struct {
		name string
		ev   Event
	}{
		{"same fid", Event{AuthorFID: 4242, Text: "hey @castbot"}},
		{"same handle", Event{AuthorHandle: "CastBot", AuthorFID: 1, Text: "@castbot hi"}},
		{"handle with at", Event{AuthorHandle: "@castbot", MentionedHandles: []string{"castbot"}}},
		{"structured mention", Event{AuthorFID: 4242, MentionedFIDs: []uint64{4242}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, d.IsMentioned(tt.ev))
		})
	}
}

func TestIsMentioned_Text(t *testing.T) {
	d := NewDetector(bot)

	tests := []struct {
		text string
		want bool
	}{
		{"@castbot what's up", true},
		{"hello @CASTBOT", true},
		{"castbot are you there", true},
		{"hey (@castbot)!", true},
		{"ping @castbot, thanks", true},
		{"hey @castbot's idea", true},
		{"@castbot/@x", true},
		{"@castbot... anyone?", true},
		{"cc @castbot.", true},
		{"@castbotfan hello", false},
		{"@castbot-fan hello", false},
		{"@castbot.eth hello", false},
		{"notcastbot", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsMentioned(Event{AuthorFID: 7, Text: tt.text}))
		})
	}
}

func TestIsMentioned_StructuredLists(t *testing.T) {
	d := NewDetector(bot)

	assert.True(t, d.IsMentioned(Event{AuthorFID: 7, MentionedHandles: []string{"someone", "CastBot"}}))
	assert.True(t, d.IsMentioned(Event{AuthorFID: 7, MentionedHandles: []string{"4242"}}))
	assert.True(t, d.IsMentioned(Event{AuthorFID: 7, MentionedFIDs: []uint64{1, 4242}}))
	assert.False(t, d.IsMentioned(Event{AuthorFID: 7, MentionedHandles: []string{"someone"}, MentionedFIDs: []uint64{1}}))
}

func TestIsMentioned_HandleOnlyIdentity(t *testing.T) {
	d := NewDetector(Identity{Handle: "@bot.eth"})

	assert.True(t, d.IsMentioned(Event{AuthorFID: 0, Text: "gm @bot.eth."}))
	assert.False(t, d.IsMentioned(Event{MentionedFIDs: []uint64{0}}))
	assert.Equal(t, "bot.eth", d.Identity().Handle)
}

func TestIsMentioned_HandleEndingInHyphen(t *testing.T) {
	d := NewDetector(Identity{Handle: "bot-"})

	assert.True(t, d.IsMentioned(Event{Text: "@bot- hi"}))
	assert.True(t, d.IsMentioned(Event{Text: "thanks @Bot-!"}))
	assert.False(t, d.IsMentioned(Event{Text: "@bot hi"}))
	assert.False(t, d.IsMentioned(Event{Text: "@bot-x hi"}))
}

func TestIsMentioned_EmptyIdentity(t *testing.T) {
	d := NewDetector(Identity{})
	assert.False(t, d.IsMentioned(Event{Text: "@ anything", MentionedHandles: []string{""}}))
}

func TestStripMentions(t *testing.T) {
	assert.Equal(t, "what is the weather?", StripMentions("@castbot  what is\tthe weather?"))
	assert.Equal(t, "hi and", StripMentions("hi @a and @b.eth"))
	assert.Equal(t, "email me @", StripMentions("email me @"))
	assert.Equal(t, "", StripMentions("@castbot"))
	assert.Equal(t, "", StripMentions("   "))
}

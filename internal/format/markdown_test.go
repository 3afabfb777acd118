package format

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestParseMarkdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		text     string
		entities []tgbotapi.MessageEntity
	}{
		{
			name: "plain",
			in:   "hello",
			text: "hello",
		},
		{
			name:     "bold",
			in:       "**Good morning!** ready?",
			text:     "Good morning! ready?",
			entities: []tgbotapi.MessageEntity{{Type: "bold", Offset: 0, Length: 13}},
		},
		{
			name:     "emoji shifts utf16 offsets",
			in:       "🌞 **Hi** `42`",
			text:     "🌞 Hi 42",
			entities: []tgbotapi.MessageEntity{{Type: "bold", Offset: 3, Length: 2}, {Type: "code", Offset: 6, Length: 2}},
		},
		{
			name:     "italic",
			in:       "line\n\n_Keep going_",
			text:     "line\n\nKeep going",
			entities: []tgbotapi.MessageEntity{{Type: "italic", Offset: 6, Length: 10}},
		},
		{
			name: "snake case stays literal",
			in:   "chat_not_found",
			text: "chat_not_found",
		},
		{
			name: "unpaired marker",
			in:   "5 ** 2",
			text: "5 ** 2",
		},
		{
			name: "trailing whitespace trimmed",
			in:   "done \n\n",
			text: "done",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseMarkdown(tt.in)
			if got.Text != tt.text {
				t.Fatalf("text = %q, want %q", got.Text, tt.text)
			}
			if len(got.Entities) != len(tt.entities) {
				t.Fatalf("entities = %+v, want %+v", got.Entities, tt.entities)
			}
			for i, e := range tt.entities {
				g := got.Entities[i]
				if g.Type != e.Type || g.Offset != e.Offset || g.Length != e.Length {
					t.Fatalf("entity %d = %+v, want %+v", i, g, e)
				}
			}
		})
	}
}

func TestUTF16Len(t *testing.T) {
	cases := map[string]int{"": 0, "abc": 3, "привіт": 6, "🌞": 2, "a🚀b": 4}
	for in, want := range cases {
		if got := UTF16Len(in); got != want {
			t.Fatalf("UTF16Len(%q) = %d, want %d", in, got, want)
		}
	}
}

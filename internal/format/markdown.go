package format

import (
	"strings"
	"unicode"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseResult contains plain text and message entities
type ParseResult struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

type marker struct {
	token  string
	entity string
}

// Longest tokens first.
var markers = []marker{
	{token: "**", entity: "bold"},
	{token: "`", entity: "code"},
	{token: "_", entity: "italic"},
}

// UTF16Len returns the length of s in UTF-16 code units, the unit Telegram
// uses for entity offsets.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}

// ParseMarkdown strips **bold**, _italic_ and `code` markers from text and
// returns the matching Telegram entities. Unpaired markers stay literal and
// spans do not nest.
func ParseMarkdown(text string) ParseResult {
	var (
		out      strings.Builder
		entities []tgbotapi.MessageEntity
		offset   int
	)

	for i := 0; i < len(text); {
		if inner, next, entity, ok := span(text, i); ok {
			n := UTF16Len(inner)
			entities = append(entities, tgbotapi.MessageEntity{Type: entity, Offset: offset, Length: n})
			out.WriteString(inner)
			offset += n
			i = next
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		out.WriteString(text[i : i+size])
		offset += runeUnits(r)
		i += size
	}

	return ParseResult{
		Text:     strings.TrimRight(out.String(), " \n"),
		Entities: entities,
	}
}

// span reports whether a formatted span starts at i, returning its inner
// text and the index just past the closing marker.
func span(text string, i int) (inner string, next int, entity string, ok bool) {
	for _, m := range markers {
		if !strings.HasPrefix(text[i:], m.token) {
			continue
		}
		start := i + len(m.token)
		end := strings.Index(text[start:], m.token)
		if end <= 0 {
			return "", 0, "", false
		}
		closeAt := start + end
		if m.token == "_" && !(wordBoundaryBefore(text, i) && wordBoundaryAfter(text, closeAt+1)) {
			return "", 0, "", false
		}
		return text[start:closeAt], closeAt + len(m.token), m.entity, true
	}
	return "", 0, "", false
}

func wordBoundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func wordBoundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Package vtt turns recognizer token streams into WebVTT subtitles and parses
// WebVTT documents back into cue blocks.
package vtt

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	Header = "WEBVTT"

	// DefaultWordsPerCue is the number of words grouped into one cue.
	DefaultWordsPerCue = 6
)

// Token is one recognizer output fragment. Offsets are milliseconds from the
// start of the audio. A fragment that begins with whitespace starts a new word.
type Token struct {
	Text       string  `json:"text"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Word is a whole word assembled from one or more contiguous tokens.
type Word struct {
	Text    string
	StartMs int64
	EndMs   int64
}

// Cue is one subtitle entry.
type Cue struct {
	StartMs int64
	EndMs   int64
	Words   []string
}

func (c Cue) Text() string {
	return strings.Join(c.Words, " ")
}

// MergeTokens joins sub-word fragments into words, preserving order.
func MergeTokens(tokens []Token) []Word {
	words := make([]Word, 0, len(tokens))
	open := false

	for _, tok := range tokens {
		fields := strings.Fields(tok.Text)
		if len(fields) == 0 {
			if tok.Text != "" {
				open = false
			}
			continue
		}

		leadingSpace := unicode.IsSpace(firstRune(tok.Text))
		for i, field := range fields {
			if i == 0 && open && !leadingSpace {
				last := &words[len(words)-1]
				last.Text += field
				last.EndMs = tok.EndMs
				continue
			}
			words = append(words, Word{Text: field, StartMs: tok.StartMs, EndMs: tok.EndMs})
		}

		open = !unicode.IsSpace(lastRune(tok.Text))
	}

	return words
}

// Group partitions words into cues of at most size words. A trailing partial
// group still produces a cue.
func Group(words []Word, size int) []Cue {
	if size <= 0 {
		size = DefaultWordsPerCue
	}

	cues := make([]Cue, 0, (len(words)+size-1)/size)
	for start := 0; start < len(words); start += size {
		end := min(start+size, len(words))
		group := words[start:end]

		texts := make([]string, len(group))
		for i, w := range group {
			texts[i] = w.Text
		}

		cues = append(cues, Cue{
			StartMs: group[0].StartMs,
			EndMs:   group[len(group)-1].EndMs,
			Words:   texts,
		})
	}

	return cues
}

// Format renders cues as a WebVTT document.
func Format(cues []Cue) string {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteString("\n\n")

	for _, cue := range cues {
		b.WriteString(FormatTiming(cue.StartMs, cue.EndMs))
		b.WriteByte('\n')
		b.WriteString(cue.Text())
		b.WriteString("\n\n")
	}

	return b.String()
}

// Build is MergeTokens, Group and Format in one step.
func Build(tokens []Token, wordsPerCue int) string {
	return Format(Group(MergeTokens(tokens), wordsPerCue))
}

// PlainText concatenates token texts the way the recognizer emitted them.
func PlainText(tokens []Token) string {
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteString(tok.Text)
	}

	return strings.TrimSpace(b.String())
}

func FormatTiming(startMs, endMs int64) string {
	return FormatTimestamp(startMs) + " --> " + FormatTimestamp(endMs)
}

// FormatTimestamp renders milliseconds as HH:MM:SS.mmm.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	hours := ms / 3_600_000
	minutes := ms % 3_600_000 / 60_000
	seconds := ms % 60_000 / 1000
	millis := ms % 1000

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	r := []rune(s)
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1]
}

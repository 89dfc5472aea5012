package vtt

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMissingHeader = errors.New("vtt: missing WEBVTT header")

// Block is one blank-line separated section of a WebVTT body. Cue blocks keep
// their timing line verbatim; anything else (NOTE, STYLE, REGION) is carried
// through untouched in Lines.
type Block struct {
	ID     string
	Timing string
	Lines  []string
	IsCue  bool
}

type Document struct {
	Header []string
	Blocks []Block
}

// Parse splits a WebVTT document into its header and blocks.
func Parse(content string) (*Document, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	groups := splitBlocks(content)
	if len(groups) == 0 || !strings.HasPrefix(groups[0][0], Header) {
		return nil, ErrMissingHeader
	}

	doc := &Document{Header: groups[0]}
	for _, group := range groups[1:] {
		doc.Blocks = append(doc.Blocks, parseBlock(group))
	}

	return doc, nil
}

func splitBlocks(content string) [][]string {
	var (
		groups  [][]string
		current []string
	)

	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				groups = append(groups, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups
}

func parseBlock(lines []string) Block {
	switch {
	case strings.Contains(lines[0], "-->"):
		return Block{Timing: lines[0], Lines: lines[1:], IsCue: true}
	case len(lines) > 1 && strings.Contains(lines[1], "-->"):
		return Block{ID: lines[0], Timing: lines[1], Lines: lines[2:], IsCue: true}
	default:
		return Block{Lines: lines}
	}
}

// TextLines returns every cue text line in document order.
func (d *Document) TextLines() []string {
	var lines []string
	for _, b := range d.Blocks {
		if b.IsCue {
			lines = append(lines, b.Lines...)
		}
	}

	return lines
}

// ReplaceTextLines swaps cue text lines by position. The number of lines must
// match TextLines exactly; timing lines are never touched.
func (d *Document) ReplaceTextLines(lines []string) error {
	if want := len(d.TextLines()); want != len(lines) {
		return fmt.Errorf("vtt: got %d text lines, document has %d", len(lines), want)
	}

	pos := 0
	for i := range d.Blocks {
		if !d.Blocks[i].IsCue {
			continue
		}
		n := len(d.Blocks[i].Lines)
		replaced := make([]string, n)
		copy(replaced, lines[pos:pos+n])
		d.Blocks[i].Lines = replaced
		pos += n
	}

	return nil
}

func (d *Document) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(d.Header, "\n"))
	b.WriteString("\n\n")

	for _, block := range d.Blocks {
		if block.IsCue {
			if block.ID != "" {
				b.WriteString(block.ID)
				b.WriteByte('\n')
			}
			b.WriteString(block.Timing)
			b.WriteByte('\n')
		}
		for _, line := range block.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	return b.String()
}

package tts

import "strings"

// Chunker splits reply text into speakable chunks so synthesis can start
// before the full reply is rendered and playback can be cut between
// chunks.
type Chunker struct {
	MaxChars   int    // flush when a chunk exceeds this length
	MinChars   int    // don't emit tiny fragments unless nothing follows
	FlushPunct string // sentence-ending punctuation
}

func NewChunker() Chunker {
	return Chunker{
		MaxChars:   240,
		MinChars:   40,
		FlushPunct: ".!?;:",
	}
}

// Split breaks text at sentence punctuation, merging fragments shorter
// than MinChars into their successor and splitting runs longer than
// MaxChars at word boundaries.
func (c Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var raw []string
	var buf strings.Builder
	for _, r := range text {
		buf.WriteRune(r)
		if strings.ContainsRune(c.FlushPunct, r) {
			raw = append(raw, buf.String())
			buf.Reset()
		}
	}
	if buf.Len() > 0 {
		raw = append(raw, buf.String())
	}

	var chunks []string
	var pending string
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if pending != "" {
			part = pending + " " + part
			pending = ""
		}
		if len(part) < c.MinChars {
			pending = part
			continue
		}
		chunks = append(chunks, c.splitLong(part)...)
	}
	if pending != "" {
		if len(chunks) > 0 && len(pending) < c.MinChars {
			chunks[len(chunks)-1] += " " + pending
		} else {
			chunks = append(chunks, pending)
		}
	}
	return chunks
}

func (c Chunker) splitLong(part string) []string {
	if len(part) <= c.MaxChars {
		return []string{part}
	}
	var out []string
	words := strings.Fields(part)
	var buf strings.Builder
	for _, w := range words {
		if buf.Len() > 0 && buf.Len()+1+len(w) > c.MaxChars {
			out = append(out, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(w)
	}
	if buf.Len() > 0 {
		out = append(out, buf.String())
	}
	return out
}

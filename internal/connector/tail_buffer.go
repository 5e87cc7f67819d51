package connector

import (
	"fmt"

	"enginemon/internal/syncutil"
)

// tailBuffer keeps the last few status texts. A text equal to the newest one
// bumps a repeat counter instead of taking a slot, so a flapping link does
// not push everything else out.
type tailBuffer struct {
	mu           syncutil.Mutex
	maxLines     int
	maxLineBytes int
	lines        []tailLine
}

type tailLine struct {
	text    string
	repeats int
}

func newTailBuffer(maxLines int, maxLineBytes int) *tailBuffer {
	if maxLines < 0 {
		maxLines = 0
	}
	if maxLineBytes <= 0 {
		maxLineBytes = 256
	}
	return &tailBuffer{maxLines: maxLines, maxLineBytes: maxLineBytes, lines: make([]tailLine, 0, maxLines)}
}

func (t *tailBuffer) add(text string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxLines == 0 {
		return
	}
	if len(text) > t.maxLineBytes {
		text = text[:t.maxLineBytes]
	}
	if n := len(t.lines); n > 0 && t.lines[n-1].text == text {
		t.lines[n-1].repeats++
		return
	}
	if len(t.lines) < t.maxLines {
		t.lines = append(t.lines, tailLine{text: text})
		return
	}
	copy(t.lines, t.lines[1:])
	t.lines[len(t.lines)-1] = tailLine{text: text}
}

func (t *tailBuffer) snapshot() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.lines))
	for _, l := range t.lines {
		if l.repeats > 0 {
			out = append(out, fmt.Sprintf("%s (x%d)", l.text, l.repeats+1))
			continue
		}
		out = append(out, l.text)
	}
	return out
}

package connector

import (
	"reflect"
	"strings"
	"testing"
)

func TestTailBuffer_KeepsNewest(t *testing.T) {
	tb := newTailBuffer(2, 0)
	tb.add("a")
	tb.add("b")
	tb.add("c")
	if got := tb.snapshot(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("snapshot=%v want [b c]", got)
	}
}

func TestTailBuffer_CollapsesRepeats(t *testing.T) {
	tb := newTailBuffer(3, 0)
	tb.add("link lost")
	tb.add("link lost")
	tb.add("link lost")
	tb.add("link up")
	want := []string{"link lost (x3)", "link up"}
	if got := tb.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot=%v want %v", got, want)
	}
}

func TestTailBuffer_TruncatesAndDisables(t *testing.T) {
	tb := newTailBuffer(1, 4)
	tb.add(strings.Repeat("x", 10))
	if got := tb.snapshot(); len(got) != 1 || got[0] != "xxxx" {
		t.Fatalf("snapshot=%v want [xxxx]", got)
	}

	off := newTailBuffer(0, 0)
	off.add("ignored")
	if got := off.snapshot(); len(got) != 0 {
		t.Fatalf("disabled buffer kept %v", got)
	}

	var nilBuf *tailBuffer
	nilBuf.add("x")
	if nilBuf.snapshot() != nil {
		t.Fatalf("nil buffer snapshot should be nil")
	}
}

package logger

import (
	"fmt"
	"testing"
)

func TestRingBuffer_KeepsNewestEntries(t *testing.T) {
	r := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		r.add(LogEntry{Message: fmt.Sprintf("m%d", i)})
	}

	got := r.snapshot()
	if len(got) != 3 {
		t.Fatalf("unexpected length: got=%d want=3", len(got))
	}
	want := []string{"m2", "m3", "m4"}
	for i, e := range got {
		if e.Message != want[i] {
			t.Fatalf("entry %d mismatch: got=%q want=%q", i, e.Message, want[i])
		}
	}
}

func TestRingBuffer_PartialFill(t *testing.T) {
	r := newRingBuffer(4)
	r.add(LogEntry{Message: "only"})

	got := r.snapshot()
	if len(got) != 1 || got[0].Message != "only" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestInit_RecordsIntoBuffer(t *testing.T) {
	Init(false)
	before := len(GetLogBuffer())
	Info("hello from test")

	after := GetLogBuffer()
	if len(after) <= before && len(after) != logBufferSize {
		t.Fatalf("log entry was not buffered: before=%d after=%d", before, len(after))
	}
	if after[len(after)-1].Message != "hello from test" {
		t.Fatalf("unexpected last message: %q", after[len(after)-1].Message)
	}
}

package stream

import (
	"bytes"
	"testing"
)

func TestRingBuffer_SnapshotOrder(t *testing.T) {
	b := NewRingBuffer(1024)

	chunks := []string{"hello ", "world", "!"}
	for _, c := range chunks {
		b.Append([]byte(c))
	}

	got := string(b.Snapshot())
	want := "hello world!"
	if got != want {
		t.Errorf("Snapshot() = %q, want %q", got, want)
	}
	if b.Bytes() != len(want) {
		t.Errorf("Bytes() = %d, want %d", b.Bytes(), len(want))
	}
	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}
}

func TestRingBuffer_EvictsOldestFirst(t *testing.T) {
	b := NewRingBuffer(10)

	b.Append([]byte("abcde"))
	b.Append([]byte("fghij"))
	b.Append([]byte("k"))

	got := string(b.Snapshot())
	if got != "fghijk" {
		t.Errorf("Snapshot() = %q, want %q", got, "fghijk")
	}
}

func TestRingBuffer_NeverExceedsBudget(t *testing.T) {
	b := NewRingBuffer(64)

	for i := 0; i < 100; i++ {
		b.Append(bytes.Repeat([]byte{'x'}, 17))
		if b.Bytes() > 64 {
			t.Fatalf("append %d: Bytes() = %d, exceeds budget 64", i, b.Bytes())
		}
	}
}

func TestRingBuffer_OversizeChunkDropped(t *testing.T) {
	b := NewRingBuffer(4)

	b.Append([]byte("toolarge"))

	if b.Bytes() != 0 {
		t.Errorf("Bytes() = %d, want 0 after oversize append", b.Bytes())
	}
	if got := b.Snapshot(); len(got) != 0 {
		t.Errorf("Snapshot() = %q, want empty", got)
	}
}

func TestRingBuffer_AppendCopiesChunk(t *testing.T) {
	b := NewRingBuffer(64)

	chunk := []byte("original")
	b.Append(chunk)
	chunk[0] = 'X'

	if got := string(b.Snapshot()); got != "original" {
		t.Errorf("Snapshot() = %q, caller mutation leaked into buffer", got)
	}
}

func TestRingBuffer_Reset(t *testing.T) {
	b := NewRingBuffer(64)
	b.Append([]byte("data"))
	b.Reset()

	if b.Bytes() != 0 || b.Len() != 0 {
		t.Errorf("after Reset: Bytes() = %d, Len() = %d, want 0, 0", b.Bytes(), b.Len())
	}
}

func TestRingBuffer_EmptyAppendIgnored(t *testing.T) {
	b := NewRingBuffer(64)
	b.Append(nil)
	b.Append([]byte{})

	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

package syncsvc

import "testing"

func TestSplitChunksBoundsSize(t *testing.T) {
	msgs := [][]byte{
		make([]byte, 100),
		make([]byte, 100),
		make([]byte, 100),
	}
	chunks := SplitChunks(msgs, 150)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3 (one message per chunk at this limit)", len(chunks))
	}
}

func TestSplitChunksPacksUnderLimit(t *testing.T) {
	msgs := [][]byte{
		make([]byte, 10),
		make([]byte, 10),
		make([]byte, 10),
	}
	chunks := SplitChunks(msgs, 25)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0]) != 2 || len(chunks[1]) != 1 {
		t.Fatalf("unexpected chunk sizes: %v", chunks)
	}
}

func TestSplitChunksOversizedMessageGetsOwnChunk(t *testing.T) {
	msgs := [][]byte{make([]byte, 1000)}
	chunks := SplitChunks(msgs, 10)
	if len(chunks) != 1 || len(chunks[0]) != 1 {
		t.Fatalf("oversized message should still be delivered in its own chunk, got %v", chunks)
	}
}

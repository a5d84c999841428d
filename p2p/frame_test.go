package p2p

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("framed payload")
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %s", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %s", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadFrame() = %q, want %q", got, payload)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatalf("WriteFrame: %s", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %s", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadFrame() = %v, want empty", got)
	}
}

// TestFrameExactlyMaxSizeAccepted and TestFrameOverMaxSizeRejected cover
// the §8 boundary property: a frame of exactly 5 MiB is accepted; 5 MiB+1
// is rejected.
func TestFrameExactlyMaxSizeAccepted(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, PeerMaxPacketSize)
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame at max size: %s", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame at max size: %s", err)
	}
	if len(got) != PeerMaxPacketSize {
		t.Errorf("ReadFrame() length = %d, want %d", len(got), PeerMaxPacketSize)
	}
}

func TestFrameOverMaxSizeRejected(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, PeerMaxPacketSize+1)
	if err := WriteFrame(&buf, payload); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("WriteFrame over max size = %v, want ErrFrameTooLarge", err)
	}
}

// TestFrameOversizeHeaderRejectedBeforeAllocation verifies a declared
// length over the limit is rejected by inspecting the header alone,
// without ever reading (and therefore allocating for) the body.
func TestFrameOversizeHeaderRejectedBeforeAllocation(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // declares ~4 GiB, no body follows
	if _, err := ReadFrame(&buf); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("ReadFrame with oversize header = %v, want ErrFrameTooLarge", err)
	}
}

func TestFrameTruncatedBodyRejected(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("complete payload")); err != nil {
		t.Fatalf("WriteFrame: %s", err)
	}
	truncated := buf.Bytes()[:buf.Len()-2]
	if _, err := ReadFrame(bytes.NewReader(truncated)); err == nil {
		t.Fatal("ReadFrame on truncated body succeeded, want error")
	}
}

func TestFrameEOFOnEmptyReader(t *testing.T) {
	if _, err := ReadFrame(bytes.NewReader(nil)); err != io.EOF {
		t.Errorf("ReadFrame on empty reader = %v, want io.EOF", err)
	}
}

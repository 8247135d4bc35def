package runner

import (
	"strings"
	"testing"
)

func TestCaptureBufferPrefixAndTotal(t *testing.T) {
	b := newCaptureBuffer(4, 8)
	b.Write([]byte("abcdef"))
	b.Write([]byte("gh"))

	if got := string(b.snapshot(b.total)); got != "abcd" {
		t.Errorf("prefix = %q, want %q", got, "abcd")
	}
	if b.total != 8 {
		t.Errorf("total = %d, want 8", b.total)
	}
}

func TestCaptureBufferTailWraps(t *testing.T) {
	b := newCaptureBuffer(4, 8)
	b.Write([]byte("abcde"))
	b.Write([]byte("fgh"))
	b.Write([]byte("ij"))

	if got := string(b.tail); got != "cdefghij" {
		t.Errorf("tail = %q, want %q", got, "cdefghij")
	}
}

func TestCaptureBufferExtractMarker(t *testing.T) {
	marker := "__M__"
	b := newCaptureBuffer(8, 32)
	payload := strings.Repeat("x", 20) + "\n" + marker + "/tmp/dir\n"
	b.Write([]byte(payload))

	value, absStart, ok := b.extractMarker([]byte(marker))
	if !ok {
		t.Fatal("marker not found")
	}
	if value != "/tmp/dir" {
		t.Errorf("value = %q, want %q", value, "/tmp/dir")
	}
	if absStart != 21 {
		t.Errorf("absStart = %d, want 21", absStart)
	}
}

func TestCaptureBufferMarkerMissing(t *testing.T) {
	b := newCaptureBuffer(8, 16)
	b.Write([]byte("no marker here"))
	if _, _, ok := b.extractMarker([]byte("__M__")); ok {
		t.Error("unexpected marker hit")
	}
}

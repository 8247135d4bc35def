package runner

import "bytes"

// captureBuffer keeps the first limit bytes of a stream and, independently,
// a rolling tail so a working-directory probe marker emitted at the very end
// of output can be recovered even when the stream is far over the limit.
type captureBuffer struct {
	limit  int
	prefix bytes.Buffer
	tail   []byte
	total  int
}

func newCaptureBuffer(limit, tailSize int) *captureBuffer {
	return &captureBuffer{
		limit: limit,
		tail:  make([]byte, 0, tailSize),
	}
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	n := len(p)
	b.total += n

	if room := b.limit - b.prefix.Len(); room > 0 {
		if room > n {
			room = n
		}
		b.prefix.Write(p[:room])
	}

	if cap(b.tail) > 0 {
		if n >= cap(b.tail) {
			b.tail = b.tail[:cap(b.tail)]
			copy(b.tail, p[n-cap(b.tail):])
		} else if len(b.tail)+n <= cap(b.tail) {
			b.tail = append(b.tail, p...)
		} else {
			keep := cap(b.tail) - n
			copy(b.tail, b.tail[len(b.tail)-keep:])
			b.tail = append(b.tail[:keep], p...)
		}
	}
	return n, nil
}

// extractMarker finds the last probe marker in the tail and returns the text
// following it up to the next newline. It also reports the marker's absolute
// offset in the stream so the caller can trim the probe's own output out of
// the captured prefix. Returns ok=false when no marker was seen, which
// happens when the command's own output drowned the tail or the shell died
// before the probe ran.
func (b *captureBuffer) extractMarker(marker []byte) (value string, absStart int, ok bool) {
	idx := bytes.LastIndex(b.tail, marker)
	if idx < 0 {
		return "", 0, false
	}
	rest := b.tail[idx+len(marker):]
	if nl := bytes.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	absStart = b.total - len(b.tail) + idx
	return string(bytes.TrimSpace(rest)), absStart, true
}

// snapshot returns the captured prefix clipped to at most n bytes.
func (b *captureBuffer) snapshot(n int) []byte {
	data := b.prefix.Bytes()
	if n < len(data) {
		data = data[:n]
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

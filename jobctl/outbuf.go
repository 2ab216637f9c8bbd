package jobctl

import "github.com/armon/circbuf"

// outputTail is the number of trailing bytes an OutputBuffer retains, bounded
// so a noisy writer cannot grow the shell's own memory usage unboundedly.
const outputTail = 4096

// OutputBuffer wraps a bounded ring buffer that keeps the tail of what is
// written to it. No Job holds one: background job output is not captured,
// and `jobs -v` does not show any.
type OutputBuffer struct {
	buf *circbuf.Buffer
}

// NewOutputBuffer allocates a buffer bounded to outputTail bytes.
func NewOutputBuffer() *OutputBuffer {
	buf, _ := circbuf.NewBuffer(outputTail) // size is a compile-time constant, never errors
	return &OutputBuffer{buf: buf}
}

func (o *OutputBuffer) Write(p []byte) (int, error) {
	return o.buf.Write(p)
}

// String returns the retained tail of output, most recent bytes last.
func (o *OutputBuffer) String() string {
	return string(o.buf.Bytes())
}

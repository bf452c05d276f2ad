// Package syncio serializes writes from concurrent goroutines.
package syncio

import (
	"io"
	"sync"
)

// StringWriter writes each string in one call to the underlying writer,
// so that lines written by different goroutines never interleave.
type StringWriter struct {
	sync.Mutex
	w io.Writer
}

func NewStringWriter(w io.Writer) *StringWriter {
	return &StringWriter{w: w}
}

func (w *StringWriter) WriteString(s string) (n int, err error) {
	w.Lock()
	defer w.Unlock()
	return io.WriteString(w.w, s)
}

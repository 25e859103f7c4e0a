package privatehttpcache

import (
	"bytes"
	"io"
)

//The BodyCapture mirrors every byte a consumer reads from a response body
// into a buffer and hands the buffer to a commit callback once the body has
// been read to its natural end.
//
// The consumer sees byte identical content and ordering to the wrapped
// stream, read errors propagate unchanged. The commit fires at most once
// per capture, and only on confirmed full consumption: closing the body
// before the end discards the buffer without committing, so partial bodies
// are never cached. For chunked transfer encoding the transport surfaces
// the terminal zero-length chunk as the end of the stream, which is the
// same condition.
type BodyCapture struct {
	body     io.ReadCloser
	buf      bytes.Buffer
	onCommit func(body []byte)

	committed bool
}

//NewBodyCapture wraps a response body.
// onCommit is called with the accumulated bytes when the consumer reads the
// body to completion.
func NewBodyCapture(body io.ReadCloser, onCommit func(body []byte)) *BodyCapture {
	return &BodyCapture{
		body:     body,
		onCommit: onCommit,
	}
}

func (c *BodyCapture) Read(p []byte) (int, error) {
	n, err := c.body.Read(p)

	if n > 0 {
		//bytes.Buffer writes never fail, they grow the buffer or panic on OOM
		c.buf.Write(p[:n])
	}

	if err == io.EOF {
		c.commit()
	}

	return n, err
}

//Close closes the underlying body.
// If the stream has not been fully consumed the buffered bytes are
// discarded, an early close never commits.
func (c *BodyCapture) Close() error {
	if !c.committed {
		c.buf.Reset()
	}

	return c.body.Close()
}

func (c *BodyCapture) commit() {
	if c.committed {
		return
	}
	c.committed = true

	if c.onCommit != nil {
		c.onCommit(c.buf.Bytes())
	}
}

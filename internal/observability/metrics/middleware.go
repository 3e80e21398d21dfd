package metrics

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// statusCapture records the status code written by the wrapped handler so the
// middleware can label the request metric. Writes without an explicit
// WriteHeader count as 200.
type statusCapture struct {
	http.ResponseWriter
	status int
}

func (c *statusCapture) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *statusCapture) Flush() {
	if flusher, ok := c.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (c *statusCapture) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := c.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("metrics: response writer does not support hijacking")
}

func (c *statusCapture) ReadFrom(src io.Reader) (int64, error) {
	if reader, ok := c.ResponseWriter.(io.ReaderFrom); ok {
		return reader.ReadFrom(src)
	}
	return io.Copy(struct{ io.Writer }{c.ResponseWriter}, src)
}

// HTTPMiddleware records a request counter and duration observation for every
// request that passes through it. A nil recorder falls back to the process
// default.
func HTTPMiddleware(recorder *Recorder, next http.Handler) http.Handler {
	if recorder == nil {
		recorder = Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		capture := &statusCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(capture, r)
		recorder.ObserveRequest(r.Method, r.URL.Path, capture.status, time.Since(start))
	})
}

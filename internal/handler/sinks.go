package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// StreamStatusTrailer 在分块响应结束时携带终止状态。
const StreamStatusTrailer = "X-Stream-Status"

const (
	streamStatusComplete = "complete"
	streamStatusError    = "error"
)

// chunkedSink 把每个增量立即写成一个 HTTP 分块。
// 响应头在第一次写入时才发送，打开调用失败时仍可以返回 500。
type chunkedSink struct {
	c       *gin.Context
	started bool
	failed  error
}

func newChunkedSink(c *gin.Context) *chunkedSink {
	return &chunkedSink{c: c}
}

func (s *chunkedSink) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Trailer", StreamStatusTrailer)
	s.c.Status(http.StatusOK)
	s.c.Writer.WriteHeaderNow()
}

func (s *chunkedSink) Write(chunk string) error {
	s.start()
	if _, err := s.c.Writer.WriteString(chunk); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}

func (s *chunkedSink) Complete(string) error {
	s.start()
	s.c.Writer.Flush()
	return nil
}

func (s *chunkedSink) Fail(err error) {
	s.start()
	s.failed = err
}

// finish 设置终止状态 trailer，在 handler 返回前调用。
func (s *chunkedSink) finish(status string) {
	if !s.started {
		return
	}
	s.c.Writer.Header().Set(StreamStatusTrailer, status)
}

// bufferedSink 收集完整回答，由 handler 在持久化之后一次性返回。
type bufferedSink struct {
	sb        strings.Builder
	completed bool
}

func (s *bufferedSink) Write(chunk string) error {
	s.sb.WriteString(chunk)
	return nil
}

func (s *bufferedSink) Complete(string) error {
	s.completed = true
	return nil
}

func (s *bufferedSink) Fail(error) {}

func (s *bufferedSink) text() string { return s.sb.String() }

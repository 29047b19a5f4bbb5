// Package relay 把推理结果的增量序列写入面向客户端的输出流。
package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"chat-relay-go/pkg/llm"
	"chat-relay-go/pkg/log"
)

// ErrStreamFailure 表示后端在已经向客户端写出部分内容后失败。
var ErrStreamFailure = errors.New("stream failed after partial delivery")

// State 是单次转发的状态。
type State int

const (
	Idle State = iota
	Sending
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Sink 是面向客户端的输出端。Write 返回错误视为客户端已断开。
type Sink interface {
	// Write 立即把一段文本发送给客户端。
	Write(chunk string) error
	// Complete 在所有增量写完后调用，text 为完整回答。
	Complete(text string) error
	// Fail 在后端中途失败时调用，必须给客户端一个明确的终止信号。
	Fail(err error)
}

// Outcome 是一次转发的结果。Text 按值交给调用方。
type Outcome struct {
	State  State
	Text   string
	Chunks int
	Err    error
}

// streamState 只属于一次 Run 调用。
type streamState struct {
	conversationID  string
	accumulatedText strings.Builder
	chunks          int
	state           State
}

// Relay 负责把增量序列写入 Sink。
type Relay struct{}

// New 创建 Relay。
func New() *Relay {
	return &Relay{}
}

// Run 消费 deltas 直到结束标记、后端错误或取消。
// 取消（ctx 结束或 Sink 写入失败）是正常退出路径，不会调用 Sink.Fail。
func (r *Relay) Run(ctx context.Context, conversationID string, deltas <-chan llm.Delta, sink Sink) Outcome {
	st := &streamState{conversationID: conversationID, state: Sending}
	start := time.Now()

	out := r.loop(ctx, st, deltas, sink)

	log.Infow("relay finished",
		"conversationId", conversationID,
		"state", out.State.String(),
		"chunks", out.Chunks,
		"chars", len(out.Text),
		"latency", time.Since(start).String(),
	)
	return out
}

func (r *Relay) loop(ctx context.Context, st *streamState, deltas <-chan llm.Delta, sink Sink) Outcome {
	finish := func(state State, err error) Outcome {
		st.state = state
		return Outcome{State: state, Text: st.accumulatedText.String(), Chunks: st.chunks, Err: err}
	}

	for {
		// 优先响应取消，避免在客户端离开后继续写出
		if ctx.Err() != nil {
			return finish(Cancelled, nil)
		}
		select {
		case <-ctx.Done():
			return finish(Cancelled, nil)
		case d, ok := <-deltas:
			if !ok {
				// 生产者在取消时也会关闭通道，不能当作正常结束
				if ctx.Err() != nil {
					return finish(Cancelled, nil)
				}
				if err := sink.Complete(st.accumulatedText.String()); err != nil {
					log.Warnw("client went away before completion was delivered", "conversationId", st.conversationID, "error", err)
					return finish(Cancelled, nil)
				}
				return finish(Completed, nil)
			}
			if d.Err != nil {
				if ctx.Err() != nil {
					return finish(Cancelled, nil)
				}
				err := d.Err
				if st.chunks > 0 {
					err = errors.Join(ErrStreamFailure, d.Err)
				}
				log.Errorw("backend failed while streaming", "conversationId", st.conversationID, "chunks", st.chunks, "error", d.Err)
				sink.Fail(err)
				return finish(Failed, err)
			}
			if d.Text == "" {
				continue
			}
			st.accumulatedText.WriteString(d.Text)
			st.chunks++
			if err := sink.Write(d.Text); err != nil {
				log.Infow("client stopped reading", "conversationId", st.conversationID, "error", err)
				return finish(Cancelled, nil)
			}
		}
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"chat-relay-go/pkg/log"
)

// Refresher 是外部的凭证刷新过程，调用会阻塞直到刷新完成。
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefresherFunc 把普通函数适配为 Refresher。
type RefresherFunc func(ctx context.Context) error

func (f RefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// NopRefresher 不做任何事，只依赖会话重建重新读取凭证。
type NopRefresher struct{}

func (NopRefresher) Refresh(context.Context) error { return nil }

// CommandRefresher 通过执行外部命令刷新凭证，
// 例如 `ada credentials update --once --profile=bedrock`。
type CommandRefresher struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

// NewCommandRefresher 根据命令行切片创建 Refresher；切片为空时返回 NopRefresher。
func NewCommandRefresher(command []string, timeout time.Duration) Refresher {
	if len(command) == 0 {
		return NopRefresher{}
	}
	return &CommandRefresher{Name: command[0], Args: command[1:], Timeout: timeout}
}

// Refresh 执行命令并记录其输出。
func (c *CommandRefresher) Refresh(ctx context.Context) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := exec.CommandContext(ctx, c.Name, c.Args...).CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", c.Timeout, err)
		}
		log.Errorw("credential refresh command failed", "command", c.Name, "output", output, "error", err)
		return fmt.Errorf("credential refresh command %q failed: %w", c.Name, err)
	}
	log.Infow("credential refresh command finished", "command", c.Name, "latency", time.Since(start).String(), "output", output)
	return nil
}

// Package session 管理调用推理后端所需的会话句柄，并在凭证过期时刷新后重试一次。
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"chat-relay-go/pkg/log"

	"golang.org/x/sync/singleflight"
)

// Factory 根据当前凭证构造一个新的会话句柄。
type Factory[S any] func(ctx context.Context) (S, error)

// Provider 持有进程级的当前会话句柄。
// 调用方每次使用前都调用 Current 取最新句柄，不应跨调用缓存。
type Provider[S any] struct {
	current atomic.Pointer[S]
	factory Factory[S]
	group   singleflight.Group
}

// NewProvider 创建一个 Provider。句柄在第一次 Current 时才构造。
func NewProvider[S any](factory Factory[S]) *Provider[S] {
	return &Provider[S]{factory: factory}
}

// Current 返回当前句柄，必要时延迟构造。
func (p *Provider[S]) Current(ctx context.Context) (S, error) {
	if s := p.current.Load(); s != nil {
		return *s, nil
	}
	return p.build(ctx, "init")
}

// Renew 重新构造句柄并原地替换。正在使用旧句柄的调用不受影响。
func (p *Provider[S]) Renew(ctx context.Context) (S, error) {
	return p.build(ctx, "renew")
}

func (p *Provider[S]) build(ctx context.Context, key string) (S, error) {
	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		if key == "init" {
			if s := p.current.Load(); s != nil {
				return *s, nil
			}
		}
		s, err := p.factory(ctx)
		if err != nil {
			return nil, err
		}
		p.current.Store(&s)
		return s, nil
	})
	if err != nil {
		var zero S
		return zero, fmt.Errorf("failed to build session: %w", err)
	}
	return v.(S), nil
}

// WithRetry 执行 op；失败时同步调用 onRetry，然后用相同输入再次执行，
// 总次数不超过 maxAttempts。任何失败都会触发重试，不区分错误类型。
// onRetry 失败或 ctx 已取消时立即返回。
func WithRetry[T any](ctx context.Context, maxAttempts int, op func(ctx context.Context) (T, error), onRetry func(ctx context.Context) error) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var (
		result T
		err    error
	)
	for attempt := 1; ; attempt++ {
		result, err = op(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= maxAttempts || ctx.Err() != nil {
			return result, err
		}
		log.Warnw("operation failed, refreshing credentials before retry", "attempt", attempt, "error", err)
		if onRetry != nil {
			if rerr := onRetry(ctx); rerr != nil {
				return result, errors.Join(err, fmt.Errorf("credential refresh failed: %w", rerr))
			}
		}
	}
}

// Guard 把凭证刷新和会话重建组合成 WithRetry 的 onRetry 回调。
type Guard[S any] struct {
	provider    *Provider[S]
	refresher   Refresher
	maxAttempts int
	group       singleflight.Group
}

// NewGuard 创建 Guard。maxAttempts 通常为 2：首次调用加一次刷新后的重试。
func NewGuard[S any](provider *Provider[S], refresher Refresher, maxAttempts int) *Guard[S] {
	if refresher == nil {
		refresher = NopRefresher{}
	}
	return &Guard[S]{provider: provider, refresher: refresher, maxAttempts: maxAttempts}
}

// MaxAttempts 返回每次外部请求允许的最大尝试次数。
func (g *Guard[S]) MaxAttempts() int {
	return g.maxAttempts
}

// Refresh 运行外部凭证刷新并重建会话句柄。
// 并发的刷新请求会合并为一次。刷新本身不随发起者取消，时长由 Refresher 自身的超时限制；
// 调用方的 ctx 结束时只是不再等待结果。
func (g *Guard[S]) Refresh(ctx context.Context) error {
	detached := context.WithoutCancel(ctx)
	ch := g.group.DoChan("refresh", func() (interface{}, error) {
		if err := g.refresher.Refresh(detached); err != nil {
			return nil, err
		}
		if _, err := g.provider.Renew(detached); err != nil {
			return nil, err
		}
		return nil, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			log.Infow("credential refresh shared with a concurrent caller")
		}
		return res.Err
	}
}

// Run 取当前会话执行 op，失败时刷新凭证并对同一输入重试一次。
func Run[S, T any](ctx context.Context, g *Guard[S], op func(ctx context.Context, s S) (T, error)) (T, error) {
	return WithRetry(ctx, g.maxAttempts, func(ctx context.Context) (T, error) {
		s, err := g.provider.Current(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		return op(ctx, s)
	}, g.Refresh)
}

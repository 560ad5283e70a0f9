// Package rate 提供块与块之间的节流策略。
package rate

import (
	"context"
	"time"

	xrate "golang.org/x/time/rate"
)

// Pacer: 每处理完一个已调用接口的块后调用一次 Wait。
type Pacer interface {
	Wait(ctx context.Context) error
}

// Func 将普通函数适配为 Pacer。
type Func func(ctx context.Context) error

func (f Func) Wait(ctx context.Context) error { return f(ctx) }

// NoWait 不做任何等待。
var NoWait Pacer = Func(func(ctx context.Context) error { return ctx.Err() })

// Constant 固定睡眠 d；d<=0 等价于 NoWait。
func Constant(d time.Duration) Pacer {
	if d <= 0 {
		return NoWait
	}
	return Func(func(ctx context.Context) error { return sleepCtx(ctx, d) })
}

// Limited 按每分钟请求数放行（令牌桶，突发为 1）；rpm<=0 等价于 NoWait。
// 首次调用消耗初始令牌，不会阻塞。
func Limited(rpm int) Pacer {
	if rpm <= 0 {
		return NoWait
	}
	lim := xrate.NewLimiter(xrate.Every(time.Minute/time.Duration(rpm)), 1)
	return Func(lim.Wait)
}

// Chain 依次执行多个 Pacer，任一失败即返回。
func Chain(ps ...Pacer) Pacer {
	return Func(func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Wait(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

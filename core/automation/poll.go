package automation

import (
	"context"
	"errors"
	"time"
)

// ErrPollExhausted 轮询在上限内没有观察到完成信号
var ErrPollExhausted = errors.New("轮询超出上限")

// PollOptions 轮询策略。Timeout 和 MaxAttempts 至少设置一个，两者都设置时先到者生效。
type PollOptions struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxAttempts int
	// Wake 收到信号时立即进行下一次检查，不必等满 Interval
	Wake <-chan struct{}
}

// Condition 一次检查。返回 error 会立即终止轮询。
type Condition func(ctx context.Context) (bool, error)

// Poll 按固定间隔检查 cond，直到返回 true、出错、超出上限或 ctx 取消。
// 首次检查立即进行。
func Poll(ctx context.Context, opts PollOptions, cond Condition) error {
	if opts.Timeout <= 0 && opts.MaxAttempts <= 0 {
		return errors.New("轮询必须设置超时或最大次数")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}

	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return ErrPollExhausted
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			// 截止时再检查一次
			if done, err := cond(ctx); err == nil && done {
				return nil
			}
			return ErrPollExhausted
		case <-ticker.C:
		case <-opts.Wake:
		}
	}
}

// AnyOf 组合多个检查，任一满足即完成。出错的检查视为未完成，不中断其余检查。
func AnyOf(conds ...Condition) Condition {
	return func(ctx context.Context) (bool, error) {
		for _, c := range conds {
			if ok, err := c(ctx); err == nil && ok {
				return true, nil
			}
		}
		return false, nil
	}
}

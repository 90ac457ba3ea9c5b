package xsingle

import (
	"context"
	"errors"

	retry "github.com/avast/retry-go/v5"
)

// conflictAttempts 冲突重试的总尝试次数（首次 + 一次回滚重读）。
const conflictAttempts = 2

// retryOnConflict 执行 fn，仅在遇到 errTransientConflict 时立即重试一次。
//
// 重试后仍冲突时按未获取处理，返回 (false, nil)。
// 存储故障不在此重试，直接返回给调用方。
func retryOnConflict(ctx context.Context, fn func() (bool, error)) (bool, error) {
	acquired, err := retry.NewWithData[bool](
		retry.Context(ctx),
		retry.Attempts(conflictAttempts),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(0),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errTransientConflict)
		}),
		retry.LastErrorOnly(true),
	).Do(fn)
	if errors.Is(err, errTransientConflict) {
		return false, nil
	}
	return acquired, err
}

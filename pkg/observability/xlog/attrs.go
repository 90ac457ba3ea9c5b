package xlog

import (
	"log/slog"
	"time"
)

// 常用属性 key
const (
	KeyError    = "error"
	KeyJob      = "job"
	KeyLockKey  = "lock_key"
	KeyBackend  = "backend"
	KeyDuration = "duration"
)

// Err 创建错误属性；err 为 nil 时返回空属性（会被 slog 忽略）。
//
//	logger.Error(ctx, "release failed", xlog.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Job 任务名属性
func Job(name string) slog.Attr {
	return slog.String(KeyJob, name)
}

// LockKey 锁 key 属性
func LockKey(key string) slog.Attr {
	return slog.String(KeyLockKey, key)
}

// Backend 锁后端属性
func Backend(name string) slog.Attr {
	return slog.String(KeyBackend, name)
}

// Duration 耗时属性
func Duration(d time.Duration) slog.Attr {
	return slog.Duration(KeyDuration, d)
}

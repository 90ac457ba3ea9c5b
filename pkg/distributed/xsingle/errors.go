package xsingle

import (
	"errors"
	"fmt"
	"time"
)

// 预定义错误。
// 使用 errors.Is 进行错误匹配，例如：
//
//	if errors.Is(err, xsingle.ErrAlreadyRunning) {
//	    // 其他实例正在执行
//	}
var (
	// ErrAlreadyRunning 锁已被其他实例持有且未过期。
	// 这是预期内的结果，调用方应将本次执行标记为"跳过"而非"失败"。
	ErrAlreadyRunning = errors.New("xsingle: another instance is already running")

	// ErrEmptyKey 锁 key 为空。
	ErrEmptyKey = errors.New("xsingle: lock key must not be empty")

	// ErrKeyTooLong 锁 key 超过数据库列长度限制。
	ErrKeyTooLong = errors.New("xsingle: lock key exceeds maximum length")

	// ErrInvalidKey 锁 key 含有后端不允许的字符（如文件后端中的路径分隔符）。
	ErrInvalidKey = errors.New("xsingle: lock key contains invalid characters")

	// ErrInvalidTimeout 超时必须为正值。
	ErrInvalidTimeout = errors.New("xsingle: lock timeout must be positive")

	// ErrNilClient 后端客户端为 nil。
	ErrNilClient = errors.New("xsingle: client is nil")

	// ErrNilBackend Guard 或 Manager 未配置后端。
	ErrNilBackend = errors.New("xsingle: backend is nil")

	// ErrNotDirectory 文件后端的目标路径已存在但不是目录。
	ErrNotDirectory = errors.New("xsingle: lock path exists and is not a directory")

	// ErrUnsupportedScheme 无法根据 URI scheme 选择后端。
	ErrUnsupportedScheme = errors.New("xsingle: unsupported backend uri scheme")

	// ErrInvalidArgs 任务参数无法编码为锁 key。
	ErrInvalidArgs = errors.New("xsingle: task arguments cannot be encoded")

	// ErrReleaseFailed 作用域退出时释放锁失败。
	ErrReleaseFailed = errors.New("xsingle: failed to release lock")

	// ErrUnsupportedFormat 配置文件格式不受支持（仅 yaml / json）。
	ErrUnsupportedFormat = errors.New("xsingle: unsupported config format")

	// ErrInvalidConfig 配置内容无效。
	ErrInvalidConfig = errors.New("xsingle: invalid config")

	// errTransientConflict 插入冲突后记录又消失（被并发释放），需要回滚重读一次。
	errTransientConflict = errors.New("xsingle: lock row vanished during acquire")
)

// AlreadyRunningError 表示一次因锁竞争而被拒绝的执行。
//
// errors.Is(err, ErrAlreadyRunning) 对它返回 true。
type AlreadyRunningError struct {
	Key     string
	Timeout time.Duration
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("xsingle: another instance is already running (key=%s, timeout=%s)", e.Key, e.Timeout)
}

// Is 使 errors.Is(err, ErrAlreadyRunning) 成立。
func (e *AlreadyRunningError) Is(target error) bool {
	return target == ErrAlreadyRunning
}

// IsAlreadyRunning 判断 err 是否表示锁竞争。
func IsAlreadyRunning(err error) bool {
	return errors.Is(err, ErrAlreadyRunning)
}

package xsingle

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// argsSeparator 分隔任务名与参数摘要。
const argsSeparator = ".args."

// Invocation 一次任务调用的参数。
type Invocation struct {
	// Args 位置参数，按顺序参与编码。
	Args []any
	// Kwargs 关键字参数，按名称排序后参与编码。
	Kwargs map[string]any
}

// Args 用位置参数构造 Invocation。
func Args(args ...any) Invocation {
	return Invocation{Args: args}
}

// With 返回追加了一个关键字参数的副本，原 Invocation 不变。
func (inv Invocation) With(name string, value any) Invocation {
	kwargs := make(map[string]any, len(inv.Kwargs)+1)
	for k, v := range inv.Kwargs {
		kwargs[k] = v
	}
	kwargs[name] = value
	return Invocation{Args: inv.Args, Kwargs: kwargs}
}

// ResolveKey 计算锁 key。
//
// includeArgs 为 false 时 key 就是任务的完整名称；
// 为 true 时 key 为 "<name>.args.<digest>"，digest 是位置参数（保持顺序）
// 与关键字参数（按名称排序）确定性编码后的 xxhash64 十六进制值。
// 因此相同参数的调用互斥，不同参数的调用可以并发。
//
// 参数按 JSON 编码比较：数值相等的整数与浮点数（Args(1) 与 Args(1.0)）
// 得到同一个 key，[]byte 与其 base64 字符串同理。
func ResolveKey(name string, includeArgs bool, inv Invocation) (string, error) {
	if err := validateKey(name); err != nil {
		return "", err
	}
	if !includeArgs {
		return name, nil
	}

	digest, err := argsDigest(inv)
	if err != nil {
		return "", err
	}
	return name + argsSeparator + digest, nil
}

// argsDigest 返回参数编码的摘要。
func argsDigest(inv Invocation) (string, error) {
	names := make([]string, 0, len(inv.Kwargs))
	for k := range inv.Kwargs {
		names = append(names, k)
	}
	sort.Strings(names)

	pairs := make([][2]any, 0, len(names))
	for _, k := range names {
		pairs = append(pairs, [2]any{k, inv.Kwargs[k]})
	}

	args := inv.Args
	if args == nil {
		args = []any{}
	}

	encoded, err := json.Marshal([2]any{args, pairs})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(encoded)), nil
}

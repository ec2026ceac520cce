package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ProcessFunc 是注入的处理回调：读取 locator 指向的内容，把产物写入 outDir，
// 返回产物路径。流水线核心不关心回调内部做什么，只按错误类型归类结果：
// *InputError → input_unreadable，*OutputError → write_failed，其余 → io_failed。
type ProcessFunc func(ctx context.Context, locator, outDir, name string) (string, error)

// InputError 表示输入侧失败（文件为空、不可读、无法解码等）。
type InputError struct {
	Locator string
	Err     error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("输入不可读：%q：%v", e.Locator, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

func IsInput(err error) bool {
	var e *InputError
	return errors.As(err, &e)
}

// OutputError 表示输出侧失败（编码失败、写入输出目录失败等）。
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("写入产物失败：%q：%v", e.Path, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

func IsOutput(err error) bool {
	var e *OutputError
	return errors.As(err, &e)
}

// IsHidden 判断条目名是否属于“隐藏”条目（以 '.' 开头）。
// 生产者在枚举时过滤一次；worker 在消费时复检
// （防御枚举与消费之间的文件系统竞态）。
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

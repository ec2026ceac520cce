// Package source 把“从哪里枚举条目”与流水线解耦：
// 本地目录与远端 autoindex 页面都实现同一个 Source 接口。
package source

import "context"

// Entry 描述枚举阶段得到的一个条目（只做列表/stat，不读内容）。
type Entry struct {
	Name    string
	Ext     string // 统一小写、含点；无扩展名时为空串
	Locator string // 本地绝对路径或 http(s) URL
	Regular bool   // false 表示目录/符号链接/设备等非常规条目
}

// Source 是生产者的枚举入口。
//
// 约束：
// - Entries 只会被生产者同步调用一次
// - 返回顺序是实现定义的（调用方不得依赖具体顺序）
type Source interface {
	Entries(ctx context.Context) ([]Entry, error)
}

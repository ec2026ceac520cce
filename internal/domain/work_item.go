package domain

// WorkItem 是生产者投递给 worker 的最小工作单元。
//
// 不变量（实现必须遵守）：
// - 创建后不可变；每个 WorkItem 恰好被一个 worker 消费
// - Name 是条目名（例如文件名）；Locator 是取内容的定位符（本地路径或 http(s) URL）
type WorkItem struct {
	Name    string
	Locator string
}

package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

const (
	ErrCodeHiddenFile        = "hidden_file"
	ErrCodeExtFiltered       = "ext_filtered"
	ErrCodeInputUnreadable   = "input_unreadable"
	ErrCodeWriteFailed       = "write_failed"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeTargetConflict    = "target_conflict"
	ErrCodeEnumerateFailed   = "enumerate_failed"
	ErrCodeLockFailed        = "lock_failed"
	ErrCodeCanceled          = "canceled"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Source string `json:"source"`
	Out    string `json:"out"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ItemResult 描述单个条目的最终结果。
//
// Name 为空串表示“运行级”的合成条目（配置/锁/枚举失败），
// 而不是某个具体输入文件的结果；见 RunReport.HasFatal。
type ItemResult struct {
	Name    string `json:"name"`
	Locator string `json:"locator"`
	Worker  int    `json:"worker"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Output string `json:"output"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 name 字典序；name=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Name
		b := r.Items[j].Name
		if a == "" && b == "" {
			return false
		}
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// HasFatal 判断本次运行是否发生了“运行级”失败（配置无效、加锁失败、枚举失败、被取消等）。
// 单个条目的处理失败不算：按契约它们不影响进程退出码。
func (r *RunReport) HasFatal() bool {
	for _, it := range r.Items {
		if it.Name == "" && it.Status == StatusFailed {
			return true
		}
	}
	return false
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}

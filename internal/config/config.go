package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 invimg.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	// DefaultWorkers 是 worker 池大小的内置默认值（当配置未指定时）。
	DefaultWorkers = 4
	// MaxWorkers 是 worker 池大小的上限（超出截断）。
	MaxWorkers = 32
)

// DefaultExtensions 是默认接受的图片扩展名（统一小写、含点）。
func DefaultExtensions() []string {
	return []string{".jpg", ".jpeg", ".png"}
}

// CLIArgs 只包含 CLI 暴露的入口（path/out/workers/source-url），
// 并保留“是否显式指定”的信息，保证覆盖优先级可实现。
type CLIArgs struct {
	Path string

	Out    string
	OutSet bool

	Workers    int
	WorkersSet bool

	SourceURL    string
	SourceURLSet bool
}

// FileConfig 对应 invimg.json 的解析结构。
type FileConfig struct {
	Path          string       `json:"path"`
	Out           string       `json:"out"`
	Workers       int          `json:"workers"`
	QueueCapacity int          `json:"queue_capacity"`
	Extensions    []string     `json:"extensions"`
	SourceURL     string       `json:"source_url"`
	Proxy         *ProxyConfig `json:"proxy"`
	LogLevel      string       `json:"log_level"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置
// （实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// Path 是本地输入目录（远端模式下可为空）。
	Path string
	// Out 是输出目录（保证非空、clean、absolute）。
	Out string

	// Workers 同时决定 worker 池大小与生产者投递的结束标记个数。
	// 两处必须消费同一个值（见 pipeline 包），否则终止协议会被破坏。
	Workers int

	// QueueCapacity 为 0 表示无界队列；>0 表示有界（生产者满时阻塞）。
	QueueCapacity int

	// Extensions 是接受的扩展名集合（统一小写、含点）。
	Extensions []string

	// SourceURL 非空时走远端 autoindex 枚举，Path 不再参与枚举。
	SourceURL string
	ProxyURL  string

	LogLevel string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path（或通过 CLI 传入 path / --source-url）", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按固定约定发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/invimg.json（可选）
// 2) CLI 未提供 path：读取 <cwd>/invimg.json；
//    - 文件存在：其中必须包含 path（或 source_url/--source-url 已给出）
//    - 文件不存在：除非 CLI 指定了 --source-url，否则报错
//
// 覆盖优先级（固定）：
// - path：CLI path > config path
// - out：CLI --out > config out > 默认 <path>/out（远端模式为 <cwd>/out）
// - workers：CLI --workers > config workers > 默认 4；范围 [1, 32]，超出截断
// - source_url：CLI --source-url > config source_url
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		// CLI 给了 path：配置文件可选，位置固定在 <path>/invimg.json。
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath := filepath.Join(absPath, "invimg.json")

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(cwdAbs, absPath, cli, fc, cfgPath)
	}

	cfgPath := filepath.Join(cwdAbs, "invimg.json")
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	sourceURL := strings.TrimSpace(fc.SourceURL)
	if cli.SourceURLSet {
		sourceURL = strings.TrimSpace(cli.SourceURL)
	}

	if !exists && sourceURL == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if exists && strings.TrimSpace(fc.Path) == "" && sourceURL == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	absPath := ""
	if strings.TrimSpace(fc.Path) != "" {
		absPath = absCleanFrom(cwdAbs, fc.Path)
	}
	return merge(cwdAbs, absPath, cli, fc, cfgPath)
}

func merge(cwdAbs, absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// source_url：CLI > config；非空时必须是 http/https。
	sourceURL := strings.TrimSpace(fc.SourceURL)
	if cli.SourceURLSet {
		sourceURL = strings.TrimSpace(cli.SourceURL)
	}
	if sourceURL != "" {
		u, err := url.Parse(sourceURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("source_url 无效：%q", sourceURL)}
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("source_url 必须是 http/https：%q", sourceURL)}
		}
	}
	if sourceURL == "" && absPath == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	// out：CLI > config > 默认。
	out := ""
	switch {
	case cli.OutSet:
		out = strings.TrimSpace(cli.Out)
	case strings.TrimSpace(fc.Out) != "":
		out = strings.TrimSpace(fc.Out)
	}
	if out == "" {
		if absPath != "" {
			out = filepath.Join(absPath, "out")
		} else {
			out = filepath.Join(cwdAbs, "out")
		}
	} else {
		out = absCleanFrom(cwdAbs, out)
	}

	// workers：CLI > config > 默认；范围 [1, 32]，超出截断。
	workers := fc.Workers
	if cli.WorkersSet {
		workers = cli.Workers
	}
	if workers == 0 {
		workers = DefaultWorkers
	}
	if workers < 1 {
		workers = 1
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	if fc.QueueCapacity < 0 {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("queue_capacity 不能为负数：%d", fc.QueueCapacity)}
	}

	exts, err := normalizeExtensions(fc.Extensions)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
	}

	logLevel := strings.TrimSpace(strings.ToLower(fc.LogLevel))
	switch logLevel {
	case "", "debug", "info", "warn", "error":
		// ok
	default:
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("log_level 只能是 debug|info|warn|error，实际是 %q", fc.LogLevel)}
	}
	if logLevel == "" {
		logLevel = "info"
	}

	return EffectiveConfig{
		Path:          absPath,
		Out:           out,
		Workers:       workers,
		QueueCapacity: fc.QueueCapacity,
		Extensions:    exts,
		SourceURL:     sourceURL,
		ProxyURL:      proxyURL,
		LogLevel:      logLevel,
	}, nil
}

// normalizeExtensions 统一小写并补齐前导点；空列表回退到默认集合。
func normalizeExtensions(in []string) ([]string, error) {
	if len(in) == 0 {
		return DefaultExtensions(), nil
	}
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || e == "." {
			return nil, fmt.Errorf("extensions 含空项")
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

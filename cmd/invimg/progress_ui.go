package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/wraxau/AC-laba3/internal/config"
	"github.com/wraxau/AC-laba3/internal/domain"
	"github.com/wraxau/AC-laba3/internal/pipeline"
)

var _ pipeline.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：pipeline 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	done    int
	ok      int
	fail    int
	skip    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] invimg run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.SourceURL != "" {
		fmt.Fprintf(p.w, "  source_url: %s\n", truncate(eff.SourceURL, 120))
	} else {
		fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	}
	fmt.Fprintf(p.w, "  out: %s\n", eff.Out)
	fmt.Fprintf(p.w, "  workers: %d\n", eff.Workers)
	fmt.Fprintf(p.w, "  queue: %s\n", formatQueue(eff.QueueCapacity))
	fmt.Fprintf(p.w, "  extensions: %s\n", formatStringListJSON(eff.Extensions))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	p.mu.Unlock()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "enumerate":
		fmt.Fprintf(p.w, "枚举: entries=%d accepted=%d skipped=%d (%s)\n",
			intField(fields, "entries"),
			intField(fields, "accepted"),
			intField(fields, "skipped"),
			formatShortDuration(dur),
		)
	case "exec":
		p.workers = intField(fields, "workers")
		fmt.Fprintf(p.w, "执行: workers=%d queue=%s\n\n",
			p.workers, formatQueue(intField(fields, "queue_capacity")),
		)
		if !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx

	status := strings.ToUpper(res.Status)
	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
		status = "OK"
	case domain.StatusSkipped:
		p.skip++
		status = "SKIP"
	case domain.StatusFailed:
		p.fail++
		status = "FAIL"
	}

	name := res.Name
	if name == "" {
		name = "<run>"
	}

	switch res.Status {
	case domain.StatusFailed:
		fmt.Fprintf(p.w, "[%d] %s %s %s: %s (%s)\n",
			idx, name, status, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		fmt.Fprintf(p.w, "[%d] %s %s (%s) (%s)\n",
			idx, name, status, res.ErrorCode, formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d] worker=%d %s %s -> %s (%s)\n",
			idx, res.Worker, name, status, res.Output, formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnProgress(done, ok, fail, skip, active int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "进度: done=%d ok=%d fail=%d skip=%d active=%d elapsed=%s\n",
		done, ok, fail, skip, active, formatElapsed(elapsed),
	)
	p.lastPrinted = time.Now()
}

// stop 在运行结束后关闭 keepalive ticker（可多次调用）。
func (p *progressUI) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stopCh := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					elapsed := time.Since(p.startedAt)
					fmt.Fprintf(p.w, "进度: done=%d ok=%d fail=%d skip=%d active=%d elapsed=%s\n",
						p.done, p.ok, p.fail, p.skip, p.workers, formatElapsed(elapsed),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func formatQueue(capacity int) string {
	if capacity <= 0 {
		return "unbounded"
	}
	return fmt.Sprintf("bounded(%d)", capacity)
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}

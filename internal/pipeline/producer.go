package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wraxau/AC-laba3/internal/domain"
	"github.com/wraxau/AC-laba3/internal/queue"
	"github.com/wraxau/AC-laba3/internal/source"
)

type producer struct {
	src     source.Source
	q       *queue.Queue[envelope]
	workers int
	accept  func(name, ext string) bool
	logger  zerolog.Logger
	obs     Observer
}

// run 枚举一次输入并投递任务。
//
// 终止协议：无论枚举成败，最后都投递恰好 workers 个结束标记——
// 每个 worker 消费一个后退出，个数与 worker 数必须严格相等
// （多则浪费，少则有 worker 永远阻塞），因此两处消费同一个配置值。
func (p *producer) run(ctx context.Context, results chan<- outcome) error {
	defer func() {
		for i := 0; i < p.workers; i++ {
			// Push 失败只发生在队列被紧急 Close 之后；此时 worker 已经被唤醒退出。
			if err := p.q.Push(envelope{eos: true}); err != nil {
				return
			}
		}
	}()

	started := time.Now()
	entries, err := p.src.Entries(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("枚举输入失败")
		return err
	}

	var accepted, skipped int
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !e.Regular {
			// 目录/符号链接/设备等：静默跳过（仅 debug），不计入 summary。
			p.logger.Debug().Str("name", e.Name).Msg("跳过非常规条目")
			continue
		}
		if IsHidden(e.Name) {
			p.logger.Info().Str("name", e.Name).Msg("跳过隐藏文件")
			skipped++
			results <- outcome{res: domain.ItemResult{
				Name:      e.Name,
				Locator:   e.Locator,
				Status:    domain.StatusSkipped,
				ErrorCode: domain.ErrCodeHiddenFile,
			}}
			continue
		}
		if !p.accept(e.Name, e.Ext) {
			p.logger.Info().Str("name", e.Name).Str("ext", e.Ext).Msg("跳过不支持的扩展名")
			skipped++
			results <- outcome{res: domain.ItemResult{
				Name:      e.Name,
				Locator:   e.Locator,
				Status:    domain.StatusSkipped,
				ErrorCode: domain.ErrCodeExtFiltered,
			}}
			continue
		}

		p.logger.Info().Str("name", e.Name).Msg("入队")
		if err := p.q.Push(envelope{item: domain.WorkItem{Name: e.Name, Locator: e.Locator}}); err != nil {
			return err
		}
		accepted++
	}

	if p.obs != nil {
		p.obs.OnPhaseDone("enumerate", map[string]any{
			"entries":  len(entries),
			"accepted": accepted,
			"skipped":  skipped,
		}, time.Since(started))
	}
	return nil
}

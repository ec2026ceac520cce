package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wraxau/AC-laba3/internal/domain"
	"github.com/wraxau/AC-laba3/internal/queue"
)

type worker struct {
	id     int
	q      *queue.Queue[envelope]
	out    string
	proc   ProcessFunc
	accept func(name, ext string) bool
	logger zerolog.Logger
}

// run 循环取任务直到收到结束标记。
//
// 状态机：RUNNING -> (Pop) -> {处理后回到 RUNNING} | {收到结束标记后 TERMINATED}。
// 单个条目的失败只记录结果，绝不中断循环；退出后不再做任何队列操作。
func (w *worker) run(ctx context.Context, results chan<- outcome) {
	for {
		env, ok := w.q.Pop()
		if !ok || env.eos {
			// 结束标记恰好消费一个；ok=false 只出现在紧急 Close 路径。
			w.logger.Debug().Msg("worker 退出")
			return
		}

		it := env.item
		started := time.Now()
		res := domain.ItemResult{Name: it.Name, Locator: it.Locator, Worker: w.id}

		switch {
		case ctx.Err() != nil:
			// 运行被取消：快速排空队列，不再处理剩余积压。
			res.Status = domain.StatusSkipped
			res.ErrorCode = domain.ErrCodeCanceled
		case IsHidden(it.Name):
			// 消费端复检：枚举与消费之间文件可能被重命名。
			w.logger.Info().Str("name", it.Name).Msg("消费端复检：跳过隐藏文件")
			res.Status = domain.StatusSkipped
			res.ErrorCode = domain.ErrCodeHiddenFile
		case !w.accept(it.Name, strings.ToLower(filepath.Ext(it.Name))):
			// 扩展名同样复检（生产端只查一次会留下不对称的竞态缺口）。
			w.logger.Info().Str("name", it.Name).Msg("消费端复检：跳过不支持的扩展名")
			res.Status = domain.StatusSkipped
			res.ErrorCode = domain.ErrCodeExtFiltered
		default:
			outPath, err := w.proc(ctx, it.Locator, w.out, it.Name)
			if err == nil {
				res.Status = domain.StatusProcessed
				res.Output = outPath
				w.logger.Info().Str("name", it.Name).Str("output", outPath).Msg("处理完成")
			} else {
				res.Status = domain.StatusFailed
				res.ErrorMsg = err.Error()
				switch {
				case IsInput(err):
					res.ErrorCode = domain.ErrCodeInputUnreadable
				case IsOutput(err):
					res.ErrorCode = domain.ErrCodeWriteFailed
				default:
					res.ErrorCode = domain.ErrCodeIOFailed
				}
				w.logger.Error().Err(err).Str("name", it.Name).Str("error_code", res.ErrorCode).Msg("处理失败")
			}
		}

		results <- outcome{res: res, dur: time.Since(started)}
	}
}

// Package pipeline 实现“单生产者 + 固定 worker 池 + 共享阻塞队列”的执行引擎：
// 枚举输入、按谓词过滤、把每个被接受的条目分发给恰好一个 worker 处理，
// 最后汇总为对外稳定的 RunReport。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wraxau/AC-laba3/internal/config"
	"github.com/wraxau/AC-laba3/internal/domain"
	"github.com/wraxau/AC-laba3/internal/infra/fsx"
	"github.com/wraxau/AC-laba3/internal/queue"
	"github.com/wraxau/AC-laba3/internal/source"
)

// lockName 是输出目录下的运行锁文件名：
// 防止两次并发运行交错写同一个输出目录。
const lockName = ".invimg.lock"

// envelope 是队列元素：要么携带一个 WorkItem，要么是结束标记。
// 用带标签的变体而不是“空值哨兵”，杜绝真实数据与结束标记撞值的可能。
type envelope struct {
	item domain.WorkItem
	eos  bool
}

// outcome 把条目结果与耗时一起送回协调者（耗时只用于进度展示，不进报告）。
type outcome struct {
	res domain.ItemResult
	dur time.Duration
}

// Execute 执行一次运行，并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, src source.Source, proc ProcessFunc) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, src, proc, nil, zerolog.Nop())
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 与 logger
// 以输出进度/日志（由上层决定是否启用）。
//
// 终止语义：生产者与全部 worker 都 join 之后才返回——
// 不存在 fire-and-forget；每个被接受的条目要么处理完成，要么被记录为失败。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, src source.Source, proc ProcessFunc, obs Observer, logger zerolog.Logger) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Source:    sourceDesc(eff),
		Out:       eff.Out,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 64),
	}

	// 输出目录：幂等创建（已存在不算错误）。
	if err := fsx.EnsureDir(eff.Out); err != nil {
		code := domain.ErrCodeIOFailed
		if fsx.IsPathTypeConflict(err) {
			code = domain.ErrCodeTargetConflict
		}
		return finalize(rr, syntheticFailed(code, fmt.Sprintf("创建输出目录失败：%v", err)))
	}

	lock := flock.New(filepath.Join(eff.Out, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return finalize(rr, syntheticFailed(domain.ErrCodeLockFailed, fmt.Sprintf("获取运行锁失败：%v", err)))
	}
	if !locked {
		return finalize(rr, syntheticFailed(domain.ErrCodeLockFailed, fmt.Sprintf("输出目录已被另一次运行占用：%s", filepath.Join(eff.Out, lockName))))
	}
	defer func() { _ = lock.Unlock() }()

	// workers 是终止协议的唯一事实来源：worker 池大小与结束标记个数都读它。
	workers := eff.Workers
	if workers < 1 {
		workers = 1
	}

	accept := acceptExtensions(eff.Extensions)

	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":        workers,
			"queue_capacity": eff.QueueCapacity,
		}, 0)
	}

	q := queue.New[envelope](eff.QueueCapacity)
	results := make(chan outcome)

	var workerWG sync.WaitGroup
	for i := 1; i <= workers; i++ {
		w := &worker{
			id:     i,
			q:      q,
			out:    eff.Out,
			proc:   proc,
			accept: accept,
			logger: logger.With().Int("worker", i).Logger(),
		}
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			w.run(ctx, results)
		}()
	}

	p := &producer{
		src:     src,
		q:       q,
		workers: workers,
		accept:  accept,
		logger:  logger.With().Str("role", "producer").Logger(),
		obs:     obs,
	}

	var prodErr error
	var prodWG sync.WaitGroup
	prodWG.Add(1)
	go func() {
		defer prodWG.Done()
		prodErr = p.run(ctx, results)
	}()

	go func() {
		// 生产者必然先于 worker 结束（worker 要消费完结束标记才退出），
		// 顺序等待即可；全部退出后关闭 results，结束下面的收集循环。
		prodWG.Wait()
		workerWG.Wait()
		close(results)
	}()

	idx := 0
	for o := range results {
		idx++
		rr.Items = append(rr.Items, o.res)
		if obs != nil {
			obs.OnItemDone(idx, o.res, o.dur)
		}
	}

	if prodErr != nil {
		// 枚举失败对本次运行是致命的，但结束标记已经投递，worker 不会悬挂。
		if errors.Is(prodErr, context.Canceled) || errors.Is(prodErr, context.DeadlineExceeded) {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeCanceled, fmt.Sprintf("运行被取消：%v", prodErr)))
		} else {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeEnumerateFailed, fmt.Sprintf("枚举输入失败：%v", prodErr)))
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func finalize(rr domain.RunReport, items ...domain.ItemResult) domain.RunReport {
	rr.Items = append(rr.Items, items...)
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Name:      "",
		Locator:   "",
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

// acceptExtensions 把扩展名列表固化为纯谓词 accept(name, ext)。
// 生产者与 worker 的复检消费同一个谓词实例，规则不会漂移。
func acceptExtensions(exts []string) func(name, ext string) bool {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[e] = struct{}{}
	}
	return func(_, ext string) bool {
		_, ok := set[ext]
		return ok
	}
}

func sourceDesc(eff config.EffectiveConfig) string {
	if eff.SourceURL != "" {
		return eff.SourceURL
	}
	return eff.Path
}

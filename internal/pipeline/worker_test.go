package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wraxau/AC-laba3/internal/config"
	"github.com/wraxau/AC-laba3/internal/domain"
	"github.com/wraxau/AC-laba3/internal/queue"
)

func pushItem(t *testing.T, q *queue.Queue[envelope], name string) {
	t.Helper()
	env := envelope{item: domain.WorkItem{Name: name, Locator: "/in/" + name}}
	if err := q.Push(env); err != nil {
		t.Fatalf("Push 失败：%v", err)
	}
}

func pushEnd(t *testing.T, q *queue.Queue[envelope]) {
	t.Helper()
	if err := q.Push(envelope{eos: true}); err != nil {
		t.Fatalf("Push 结束标记失败：%v", err)
	}
}

func TestWorker_StopsAtEndMarker(t *testing.T) {
	q := queue.New[envelope](0)
	pushEnd(t, q)
	pushItem(t, q, "after.jpg") // 结束标记之后的任务不得被消费

	rec := newRecordProcess()
	w := &worker{
		id:     1,
		q:      q,
		out:    t.TempDir(),
		proc:   rec.fn,
		accept: acceptExtensions(config.DefaultExtensions()),
		logger: zerolog.Nop(),
	}

	results := make(chan outcome, 4)
	w.run(context.Background(), results)

	if q.Len() != 1 {
		t.Fatalf("worker 退出后不应再消费队列，剩余 %d", q.Len())
	}
	if len(rec.snapshot()) != 0 {
		t.Fatalf("结束标记不应触达回调：%v", rec.snapshot())
	}
}

func TestWorker_RechecksHiddenAndExtension(t *testing.T) {
	q := queue.New[envelope](0)
	pushItem(t, q, ".late.png")
	pushItem(t, q, "movie.gif")
	pushEnd(t, q)

	rec := newRecordProcess()
	w := &worker{
		id:     1,
		q:      q,
		out:    t.TempDir(),
		proc:   rec.fn,
		accept: acceptExtensions(config.DefaultExtensions()),
		logger: zerolog.Nop(),
	}

	results := make(chan outcome, 4)
	w.run(context.Background(), results)
	close(results)

	codes := map[string]string{}
	for o := range results {
		if o.res.Status != domain.StatusSkipped {
			t.Fatalf("复检失败的条目应被跳过：%+v", o.res)
		}
		codes[o.res.Name] = o.res.ErrorCode
	}
	if codes[".late.png"] != domain.ErrCodeHiddenFile {
		t.Fatalf("隐藏文件复检 error_code 不符合预期：%v", codes)
	}
	if codes["movie.gif"] != domain.ErrCodeExtFiltered {
		t.Fatalf("扩展名复检 error_code 不符合预期：%v", codes)
	}
	if len(rec.snapshot()) != 0 {
		t.Fatalf("被跳过的条目不应触达回调：%v", rec.snapshot())
	}
}

func TestWorker_ClassifiesFailures(t *testing.T) {
	q := queue.New[envelope](0)
	pushItem(t, q, "input.jpg")
	pushItem(t, q, "output.jpg")
	pushItem(t, q, "other.jpg")
	pushEnd(t, q)

	rec := newRecordProcess()
	rec.fail["input.jpg"] = &InputError{Locator: "/in/input.jpg", Err: errors.New("文件为空")}
	rec.fail["output.jpg"] = &OutputError{Path: "/out/inverted_output.jpg", Err: errors.New("磁盘已满")}
	rec.fail["other.jpg"] = errors.New("未分类故障")

	w := &worker{
		id:     2,
		q:      q,
		out:    t.TempDir(),
		proc:   rec.fn,
		accept: acceptExtensions(config.DefaultExtensions()),
		logger: zerolog.Nop(),
	}

	results := make(chan outcome, 4)
	w.run(context.Background(), results)
	close(results)

	codes := map[string]string{}
	for o := range results {
		if o.res.Status != domain.StatusFailed {
			t.Fatalf("注入失败的条目应标记为 failed：%+v", o.res)
		}
		if o.res.Worker != 2 {
			t.Fatalf("结果应携带 worker 编号：%+v", o.res)
		}
		codes[o.res.Name] = o.res.ErrorCode
	}
	want := map[string]string{
		"input.jpg":  domain.ErrCodeInputUnreadable,
		"output.jpg": domain.ErrCodeWriteFailed,
		"other.jpg":  domain.ErrCodeIOFailed,
	}
	for name, code := range want {
		if codes[name] != code {
			t.Fatalf("%s 分类不符合预期：got %q want %q", name, codes[name], code)
		}
	}
}

func TestWorker_CanceledContextSkipsBacklog(t *testing.T) {
	q := queue.New[envelope](0)
	pushItem(t, q, "a.jpg")
	pushItem(t, q, "b.jpg")
	pushEnd(t, q)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := newRecordProcess()
	w := &worker{
		id:     1,
		q:      q,
		out:    t.TempDir(),
		proc:   rec.fn,
		accept: acceptExtensions(config.DefaultExtensions()),
		logger: zerolog.Nop(),
	}

	results := make(chan outcome, 4)
	w.run(ctx, results)
	close(results)

	var n int
	for o := range results {
		if o.res.Status != domain.StatusSkipped || o.res.ErrorCode != domain.ErrCodeCanceled {
			t.Fatalf("取消后积压条目应以 canceled 跳过：%+v", o.res)
		}
		n++
	}
	if n != 2 {
		t.Fatalf("期望排空 2 条积压，实际 %d", n)
	}
	if len(rec.snapshot()) != 0 {
		t.Fatalf("取消后不应触达回调：%v", rec.snapshot())
	}
}

// Package queue 提供生产者/worker 池共享的阻塞式 FIFO 队列。
//
// 约束：
// - Push/Pop 可以被任意多个 goroutine 并发调用
// - 同一个生产者的投递顺序对消费者保持 FIFO；多生产者之间的交错顺序不作保证
// - 任何元素最多被一次 Pop 取走（不丢失、不重复）
package queue

import (
	"errors"
	"sync"
)

// ErrClosed 表示在已关闭的队列上调用 Push。
var ErrClosed = errors.New("queue 已关闭")

// Queue 是 mutex + 条件变量实现的阻塞队列。
//
// capacity <= 0 表示无界（Push 永不阻塞）；capacity > 0 表示有界
// （满时 Push 阻塞，与 Pop 的“非空”等待条件使用各自独立的条件变量，
// 避免生产者与空闲消费者互相唤醒失败导致死锁）。
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items    []T
	capacity int
	closed   bool
}

// New 构造一个队列；capacity <= 0 表示无界。
func New[T any](capacity int) *Queue[T] {
	q := &Queue[T]{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push 把 v 追加到队尾，并至少唤醒一个阻塞中的 Pop。
// 有界队列满时阻塞，直到出现空位或队列被 Close。
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	// 唤醒后必须重新检查条件（防御 spurious wakeup / lost wakeup）。
	for !q.closed && q.capacity > 0 && len(q.items) >= q.capacity {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}

	q.items = append(q.items, v)
	q.notEmpty.Signal()
	return nil
}

// Pop 阻塞直到队列非空，然后原子地取走并返回队头元素。
//
// 队列被 Close 后，Pop 先取空剩余元素，随后返回 ok=false。
// 正常终止协议不依赖 Close，而是由生产者投递结束标记（见 pipeline 包）。
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	v := q.items[0]
	var zero T
	q.items[0] = zero // 释放对已取走元素的引用
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}

	q.notFull.Signal()
	return v, true
}

// Len 返回当前排队的元素个数（仅用于观测/测试）。
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close 关闭队列并广播唤醒所有等待者（紧急停止路径）。
// 之后 Push 返回 ErrClosed；Pop 取空剩余元素后返回 ok=false。
// Close 可以重复调用。
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

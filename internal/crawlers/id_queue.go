package crawlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
)

// queueItem 队列中的一个待处理ID
type queueItem struct {
	// Index 在去重后输入中的位置, 结果按它排序
	Index int
	// Raw 调用方传入的原始字符串
	Raw string
	Ref platform.ItemRef
}

// IDQueue 待处理ID队列
// 职责: 按输入顺序发放ID, 同一ID只入队一次, 支持多个worker并发Pop
type IDQueue struct {
	// 待处理队列
	pending chan queueItem

	// 已入队ID集合
	seen map[string]bool

	// 已处理完成的ID集合
	visited map[string]bool

	mu     sync.RWMutex
	next   int
	closed bool
}

// NewIDQueue 创建容量为 capacity 的ID队列
func NewIDQueue(capacity int) *IDQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &IDQueue{
		pending: make(chan queueItem, capacity),
		seen:    make(map[string]bool),
		visited: make(map[string]bool),
	}
}

// Push 添加ID, 重复ID返回 false
// 队列满时返回错误而不是阻塞
func (q *IDQueue) Push(raw string, ref platform.ItemRef) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, fmt.Errorf("队列已关闭")
	}
	if q.seen[ref.ID] {
		return false, nil
	}

	item := queueItem{Index: q.next, Raw: raw, Ref: ref}
	select {
	case q.pending <- item:
	default:
		return false, fmt.Errorf("队列已满: 容量 %d", cap(q.pending))
	}
	q.seen[ref.ID] = true
	q.next++
	return true, nil
}

// Pop 取出下一个ID, 队列关闭且取空或 ctx 取消时 ok=false
func (q *IDQueue) Pop(ctx context.Context) (queueItem, bool) {
	select {
	case <-ctx.Done():
		return queueItem{}, false
	case item, ok := <-q.pending:
		return item, ok
	}
}

// MarkVisited 标记ID已处理
func (q *IDQueue) MarkVisited(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.visited[id] = true
	return len(q.visited)
}

// IsVisited 检查ID是否已处理
func (q *IDQueue) IsVisited(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.visited[id]
}

// Len 已入队的ID总数
func (q *IDQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.next
}

// PendingCount 返回待处理ID数量
func (q *IDQueue) PendingCount() int {
	return len(q.pending)
}

// Close 关闭队列, 已入队的ID仍可取出
func (q *IDQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		close(q.pending)
		q.closed = true
	}
}

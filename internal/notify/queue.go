// queue.go

package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL 通知默认存活时间
const DefaultTTL = 5 * time.Second

// Notification 系统通知
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue 通知队列
// FIFO，条目到期后自动移除，不去重，不排优先级
type Queue struct {
	mutex  sync.Mutex
	items  []Notification
	timers map[string]*time.Timer
	ttl    time.Duration
	sink   func(Notification)
	closed bool
}

// NewQueue 创建通知队列
func NewQueue(ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Queue{
		items:  make([]Notification, 0),
		timers: make(map[string]*time.Timer),
		ttl:    ttl,
	}
}

// SetSink 设置通知转发回调（用于WebSocket推送）
func (q *Queue) SetSink(sink func(Notification)) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.sink = sink
}

// Push 追加一条通知，并安排到期后移除该条目
func (q *Queue) Push(message string) Notification {
	q.mutex.Lock()

	n := Notification{
		ID:        uuid.New().String(),
		Message:   message,
		CreatedAt: time.Now(),
	}

	if q.closed {
		q.mutex.Unlock()
		return n
	}

	q.items = append(q.items, n)
	q.timers[n.ID] = time.AfterFunc(q.ttl, func() {
		q.remove(n.ID)
	})
	sink := q.sink
	q.mutex.Unlock()

	if sink != nil {
		sink(n)
	}

	return n
}

// List 返回当前存活通知的快照
func (q *Queue) List() []Notification {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	items := make([]Notification, len(q.items))
	copy(items, q.items)
	return items
}

// Close 关闭队列并取消所有到期定时器
func (q *Queue) Close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.items = nil
}

// remove 移除指定通知
func (q *Queue) remove(id string) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return
	}

	delete(q.timers, id)
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

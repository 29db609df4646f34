// internal/services/task_guard.go
package services

import (
	"sync"
	"time"

	apperrors "github.com/Corphon/ElePitch/internal/errors"
)

// TaskUpdate 表示任务状态广播
type TaskUpdate struct {
	Busy    bool   `json:"busy"`
	Label   string `json:"label"`   // 进行中任务的描述，如 生成中...
	Status  string `json:"status"`  // 状态：running, completed, failed
	Message string `json:"message"` // 完成或失败时的补充信息
}

// TaskGuard 单槽位任务守卫
// 生成类操作一次只允许一个在途，后到者直接失败而非排队；
// 状态变化会推送给所有订阅者（非阻塞，慢订阅者丢最新一帧）
type TaskGuard struct {
	mu          sync.Mutex
	busy        bool
	label       string
	startTime   time.Time
	subscribers map[chan TaskUpdate]bool
}

// NewTaskGuard 创建任务守卫
func NewTaskGuard() *TaskGuard {
	return &TaskGuard{
		subscribers: make(map[chan TaskUpdate]bool),
	}
}

// Acquire 占用任务槽位，已有任务在途时返回冲突错误
func (g *TaskGuard) Acquire(label string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busy {
		return apperrors.NewConflictError("目前有任務進行中，請稍候再試", nil)
	}
	g.busy = true
	g.label = label
	g.startTime = time.Now()
	g.broadcastLocked(TaskUpdate{Busy: true, Label: label, Status: "running"})
	return nil
}

// Release 释放槽位并广播结果
func (g *TaskGuard) Release(message string, failed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.busy {
		return
	}
	status := "completed"
	if failed {
		status = "failed"
	}
	update := TaskUpdate{Busy: false, Label: g.label, Status: status, Message: message}
	g.busy = false
	g.label = ""
	g.broadcastLocked(update)
}

// Current 返回当前是否有任务在途及其描述
func (g *TaskGuard) Current() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy, g.label
}

// Subscribe 订阅任务状态更新
func (g *TaskGuard) Subscribe() chan TaskUpdate {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch := make(chan TaskUpdate, 8)
	g.subscribers[ch] = true

	// 新订阅者立即拿到当前状态
	status := "idle"
	if g.busy {
		status = "running"
	}
	ch <- TaskUpdate{Busy: g.busy, Label: g.label, Status: status}
	return ch
}

// Unsubscribe 取消订阅并关闭通道
func (g *TaskGuard) Unsubscribe(ch chan TaskUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.subscribers[ch] {
		delete(g.subscribers, ch)
		close(ch)
	}
}

// broadcastLocked 向所有订阅者推送，调用方需持锁
func (g *TaskGuard) broadcastLocked(update TaskUpdate) {
	for subscriber := range g.subscribers {
		// 非阻塞发送，通道已满则跳过
		select {
		case subscriber <- update:
		default:
		}
	}
}

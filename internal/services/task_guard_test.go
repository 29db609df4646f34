// internal/services/task_guard_test.go
package services

import (
	"testing"
)

// TestTaskGuardSingleSlot 槽位一次只给一个任务
func TestTaskGuardSingleSlot(t *testing.T) {
	guard := NewTaskGuard()

	if err := guard.Acquire("生成中..."); err != nil {
		t.Fatalf("占用空闲槽位失败: %v", err)
	}
	if err := guard.Acquire("分析中..."); err == nil {
		t.Error("槽位已占用时应该拒绝后到的任务")
	}

	busy, label := guard.Current()
	if !busy || label != "生成中..." {
		t.Errorf("当前状态不正确: busy=%v label=%s", busy, label)
	}

	guard.Release("完成", false)
	busy, _ = guard.Current()
	if busy {
		t.Error("释放后槽位应该空闲")
	}
	if err := guard.Acquire("分析中..."); err != nil {
		t.Errorf("释放后应该可以再次占用: %v", err)
	}
}

// TestTaskGuardSubscribe 订阅者收到当前状态与后续变化
func TestTaskGuardSubscribe(t *testing.T) {
	guard := NewTaskGuard()

	ch := guard.Subscribe()
	defer guard.Unsubscribe(ch)

	first := <-ch
	if first.Busy || first.Status != "idle" {
		t.Errorf("新订阅者应该先收到空闲状态: %+v", first)
	}

	if err := guard.Acquire("語音轉文字中..."); err != nil {
		t.Fatalf("占用槽位失败: %v", err)
	}
	running := <-ch
	if !running.Busy || running.Status != "running" || running.Label != "語音轉文字中..." {
		t.Errorf("应该收到运行中状态: %+v", running)
	}

	guard.Release("失败原因", true)
	done := <-ch
	if done.Busy || done.Status != "failed" || done.Message != "失败原因" {
		t.Errorf("应该收到失败状态: %+v", done)
	}
}

// TestTaskGuardSlowSubscriberDoesNotBlock 慢订阅者不阻塞广播
func TestTaskGuardSlowSubscriberDoesNotBlock(t *testing.T) {
	guard := NewTaskGuard()

	ch := guard.Subscribe()
	defer guard.Unsubscribe(ch)

	// 不消费订阅通道，连续制造超过缓冲容量的状态变化
	for i := 0; i < 10; i++ {
		if err := guard.Acquire("生成中..."); err != nil {
			t.Fatalf("第 %d 次占用失败: %v", i+1, err)
		}
		guard.Release("完成", false)
	}

	busy, _ := guard.Current()
	if busy {
		t.Error("循环结束后槽位应该空闲")
	}
}

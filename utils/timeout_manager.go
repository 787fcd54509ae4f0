package utils

import (
	"github.com/sirupsen/logrus"
	"sync"
	"time"
)

// TimeoutManager 一个计时器
// 如果在timeout时间内没有执行Reset或Cancel，就会执行fun函数，fun最多执行一次
type TimeoutManager struct {
	mu      sync.Mutex
	timer   *time.Timer
	timeout time.Duration
	fired   bool
}

// NewTimeoutManager 创建一个新的计时器实例
func NewTimeoutManager() *TimeoutManager {
	return &TimeoutManager{}
}

// Start 开始计时
func (t *TimeoutManager) Start(timeout time.Duration, fun func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timeout = timeout
	t.fired = false
	t.timer = time.AfterFunc(timeout, func() {
		t.mu.Lock()
		if t.fired {
			t.mu.Unlock()
			return
		}
		t.fired = true
		t.mu.Unlock()
		logrus.Debugf("[TimeoutManager] timer expired after %v", timeout)
		fun()
	})
}

// Reset 重新开始计时，已经触发过的计时器不会再次触发
func (t *TimeoutManager) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil || t.fired {
		return
	}
	t.timer.Reset(t.timeout)
}

// Cancel 取消计时，返回计时器是否在触发前被取消
func (t *TimeoutManager) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil || t.fired {
		return false
	}
	t.fired = true
	t.timer.Stop()
	return true
}

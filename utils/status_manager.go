package utils

import "sync"

// StatusManager 并发安全的状态记录
type StatusManager struct {
	lock   sync.RWMutex
	status string
}

func NewStatusManager(initial string) *StatusManager {
	return &StatusManager{
		status: initial,
	}
}

func (s *StatusManager) Set(status string) {
	defer s.lock.Unlock()
	s.lock.Lock()
	s.status = status
}

func (s *StatusManager) Get() string {
	defer s.lock.RUnlock()
	s.lock.RLock()
	return s.status
}

func (s *StatusManager) Is(statusList ...string) bool {
	defer s.lock.RUnlock()
	s.lock.RLock()
	for _, status := range statusList {
		if s.status == status {
			return true
		}
	}
	return false
}

// CompareAndSet 当前状态为 from 时切换到 to，返回是否切换成功
func (s *StatusManager) CompareAndSet(from, to string) bool {
	defer s.lock.Unlock()
	s.lock.Lock()
	if s.status != from {
		return false
	}
	s.status = to
	return true
}

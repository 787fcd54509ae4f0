package agent

import (
	"fmt"
	e "github.com/fansqz/inspector-bridge/error"
	"github.com/sirupsen/logrus"
	"sync"
)

// ObjectGroups 统计每个对象组持有的对象数
type ObjectGroups struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewObjectGroups() *ObjectGroups {
	return &ObjectGroups{counts: make(map[string]int)}
}

// Acquire 对象组新增一个对象
func (g *ObjectGroups) Acquire(group string) {
	if group == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts[group]++
}

// Release 释放对象组，计数会小于零时不做任何修改并返回 ErrReleaseUnbalanced
// marker 标记调用的上下文，写入诊断日志
func (g *ObjectGroups) Release(group string, marker string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.counts[group] <= 0 {
		err := fmt.Errorf("%w: group %q at %s", e.ErrReleaseUnbalanced, group, marker)
		logrus.Warnf("[ObjectGroups] release ignored, err = %v", err)
		return err
	}
	delete(g.counts, group)
	return nil
}

// Count 对象组当前的计数
func (g *ObjectGroups) Count(group string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[group]
}

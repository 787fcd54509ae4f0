// Package registry 维护当前连接的前端，按 id 查找，并可作为广播列表遍历
package registry

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/sirupsen/logrus"
	"sync"
)

// Client 已连接的前端
type Client interface {
	// Send 发送一条消息，消息会被序列化为 JSON
	Send(message interface{}) error
}

// Registry 以插入顺序保存连接，遍历时最近 attach 的最先访问
// 所有方法并发安全，回调在锁外执行，回调中可以再次调用 Registry
type Registry struct {
	mu      sync.RWMutex
	clients *linkedhashmap.Map
}

func New() *Registry {
	return &Registry{
		clients: linkedhashmap.New(),
	}
}

// Attach 加入一个连接
// id 已存在时不做任何操作并返回 false，先加入的连接保持不变
func (r *Registry) Attach(id string, client Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.clients.Get(id); found {
		logrus.Warnf("[Registry] attach duplicate connection %s ignored", id)
		return false
	}
	r.clients.Put(id, client)
	return true
}

// Detach 移除 id 对应的连接，无论是否存在都会调用 callback
func (r *Registry) Detach(id string, callback func()) {
	r.mu.Lock()
	r.clients.Remove(id)
	r.mu.Unlock()
	if callback != nil {
		callback()
	}
}

// Find 查找连接，只有找到且 client 不为空时才调用 callback
func (r *Registry) Find(id string, callback func(Client)) {
	r.mu.RLock()
	value, found := r.clients.Get(id)
	r.mu.RUnlock()
	if !found || value == nil {
		return
	}
	client, ok := value.(Client)
	if !ok || client == nil {
		return
	}
	callback(client)
}

// ForEach 从最近加入的连接开始依次调用 callback
// 遍历的是调用时的快照，回调中被 detach 的连接不会再被访问
func (r *Registry) ForEach(callback func(id string, client Client)) {
	r.mu.RLock()
	keys := r.clients.Keys()
	r.mu.RUnlock()

	for i := len(keys) - 1; i >= 0; i-- {
		id := keys[i].(string)
		r.mu.RLock()
		value, found := r.clients.Get(id)
		r.mu.RUnlock()
		if !found {
			continue
		}
		if client, ok := value.(Client); ok && client != nil {
			callback(id, client)
		}
	}
}

// Broadcast 将 message 发送给所有连接，发送失败只记录日志
func (r *Registry) Broadcast(message interface{}) {
	r.ForEach(func(id string, client Client) {
		if err := client.Send(message); err != nil {
			logrus.Warnf("[Registry] broadcast to %s fail, err = %v", id, err)
		}
	})
}

// Len 当前连接数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients.Size()
}

// Package eventbus 提供进程内的发布/订阅通信模型.
// 存储引擎通过它对外广播连接与文件生命周期事件，订阅关系显式注册，
// 不依赖任何全局事件状态.
package eventbus

import (
	"context"
	"sync"
)

// 引擎发布的生命周期主题.
const (
	// TopicConnection 连接建立成功，载荷为后端信息.
	TopicConnection = "connection"
	// TopicConnectionFailed 连接建立失败，载荷为失败原因.
	TopicConnectionFailed = "connectionFailed"
	// TopicFile 单个文件写入完成，载荷为存储结果记录.
	TopicFile = "file"
)

// Event 总线上流转的事件.
type Event struct {
	Topic   string
	Payload any
}

// Handler 事件处理函数.
type Handler func(ctx context.Context, evt Event)

// LocalBus 基于内存的本地事件总线实现.
// 分发是同步的：Publish 返回时所有订阅者都已执行完毕，
// 这样"事件恰好触发一次"之类的性质对调用方直接可见.
type LocalBus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
}

// NewLocalBus 创建一个新的本地事件总线.
func NewLocalBus() *LocalBus {
	return &LocalBus{
		subscribers: make(map[string][]Handler),
	}
}

// Publish 发布事件到总线.
func (b *LocalBus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	handlers := b.subscribers[evt.Topic]
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, evt)
	}
}

// Subscribe 订阅特定主题的事件.
func (b *LocalBus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Unsubscribe 取消某主题的全部订阅.
func (b *LocalBus) Unsubscribe(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, topic)
}

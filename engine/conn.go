package engine

// 连接管理器：负责底层存储句柄的生命周期.
// 状态机 Pending → Open | Failed，终态不自动重连；
// 连接就绪前到达的上传按到达顺序排队放行.

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wyfcoding/gridstore/eventbus"
	"github.com/wyfcoding/gridstore/metrics"
	"github.com/wyfcoding/gridstore/storage"
	"github.com/wyfcoding/gridstore/xerrors"
)

// ConnState 连接状态.
type ConnState int32

const (
	StatePending ConnState = iota
	StateOpen
	StateFailed
)

func (s ConnState) String() string {
	return [...]string{"Pending", "Open", "Failed"}[s]
}

// ErrConnectionNotOpen 连接未就绪时写入或删除的前置条件错误.
var ErrConnectionNotOpen = xerrors.Newf(xerrors.KindPrecondition,
	"The database connection must be open to store files")

// ConnSource 连接来源：三选一 —— 拨号 URI、已建立的句柄、延迟提供者.
type ConnSource struct {
	backend  storage.Backend
	provider func(ctx context.Context) (storage.Backend, error)
}

// FromBackend 采用调用方已建立的句柄.
// 初始化时会校验句柄确实处于打开状态；已关闭的句柄按致命配置错误
// 处理，后续所有上传直接失败，不触发 connectionFailed 事件.
func FromBackend(b storage.Backend) ConnSource {
	return ConnSource{backend: b}
}

// FromProvider 采用延迟解析的后端提供者（promise 的 Go 形态）.
// 提供者返回错误等同于拨号失败.
func FromProvider(fn func(ctx context.Context) (storage.Backend, error)) ConnSource {
	return ConnSource{provider: fn}
}

// FromGridFSURI 按连接字符串拨号 GridFS 后端.
func FromGridFSURI(conf *storage.GridFSConfig) ConnSource {
	return FromProvider(func(ctx context.Context) (storage.Backend, error) {
		return storage.DialGridFS(ctx, conf)
	})
}

type waitResult struct {
	backend storage.Backend
	err     error
	seq     int // 放行序号，按到达顺序分配
}

type connManager struct {
	mu      sync.Mutex
	state   ConnState
	backend storage.Backend
	lastErr error
	waiters []chan waitResult
	bus     *eventbus.LocalBus
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

func newConnManager(bus *eventbus.LocalBus, logger *slog.Logger, m *metrics.Metrics, timeout time.Duration) *connManager {
	return &connManager{
		bus:     bus,
		logger:  logger,
		metrics: m,
		timeout: timeout,
	}
}

// initialize 异步建立连接，完成后迁移状态并放行队列.
// 拨号与提供者解析受 timeout 约束；提供者忽略上下文时，
// 超时一到仍然迁移到 Failed，不会让队列无限悬挂.
func (m *connManager) initialize(src ConnSource) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if src.backend != nil {
		if err := src.backend.Ping(ctx); err != nil {
			m.logger.Error("adopted storage handle is not open", "error", err)
			m.fail(ErrConnectionNotOpen, false)
			return
		}
		m.open(src.backend)
		return
	}

	type providerResult struct {
		backend storage.Backend
		err     error
	}
	done := make(chan providerResult, 1)
	go func() {
		b, err := src.provider(ctx)
		done <- providerResult{backend: b, err: err}
	}()

	select {
	case <-ctx.Done():
		// 晚到的后端就地释放
		go func() {
			if res := <-done; res.backend != nil {
				_ = res.backend.Close(context.Background())
			}
		}()
		m.fail(xerrors.Classify(ctx.Err(), xerrors.KindConnection), true)
	case res := <-done:
		if res.err != nil {
			m.fail(xerrors.Classify(res.err, xerrors.KindConnection), true)
			return
		}
		m.open(res.backend)
	}
}

func (m *connManager) open(b storage.Backend) {
	m.mu.Lock()
	m.state = StateOpen
	m.backend = b
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	m.logger.Info("storage connection opened", "queued", len(waiters))
	m.bus.Publish(context.Background(), eventbus.Event{
		Topic:   eventbus.TopicConnection,
		Payload: b,
	})

	// FIFO 放行
	for i, ch := range waiters {
		ch <- waitResult{backend: b, seq: i}
	}
}

func (m *connManager) fail(err error, emitEvent bool) {
	m.mu.Lock()
	m.state = StateFailed
	m.backend = nil
	m.lastErr = err
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	m.logger.Error("storage connection failed", "queued", len(waiters), "error", err)
	if emitEvent {
		m.bus.Publish(context.Background(), eventbus.Event{
			Topic:   eventbus.TopicConnectionFailed,
			Payload: err,
		})
	}

	// 排队中的上传以同一终态错误快速失败
	for i, ch := range waiters {
		ch <- waitResult{err: err, seq: i}
	}
}

// await 阻塞到连接进入终态或调用方上下文取消.
// 返回的 seq 是 FIFO 放行序号；未排队（到达时已 Open/Failed）时为 -1.
func (m *connManager) await(ctx context.Context) (storage.Backend, int, error) {
	m.mu.Lock()
	switch m.state {
	case StateOpen:
		b := m.backend
		m.mu.Unlock()
		return b, -1, nil
	case StateFailed:
		err := m.lastErr
		m.mu.Unlock()
		return nil, -1, err
	}
	ch := make(chan waitResult, 1)
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.QueuedUploads.Inc()
	}
	defer func() {
		if m.metrics != nil {
			m.metrics.QueuedUploads.Dec()
		}
	}()

	select {
	case <-ctx.Done():
		return nil, -1, ctx.Err()
	case res := <-ch:
		return res.backend, res.seq, res.err
	}
}

// current 返回已打开的后端；非 Open 状态一律返回前置条件错误.
func (m *connManager) current() (storage.Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen {
		return nil, ErrConnectionNotOpen
	}
	return m.backend, nil
}

// currentState 供健康检查与测试观察状态.
func (m *connManager) currentState() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// shutdown 释放后端连接.
func (m *connManager) shutdown(ctx context.Context) error {
	m.mu.Lock()
	b := m.backend
	m.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Close(ctx)
}

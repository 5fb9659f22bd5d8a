// Package engine 实现分块对象存储的上传引擎.
// 对宿主暴露固定的存储引擎契约：HandleFile 接收文件流并写入后端，
// RemoveFile 删除既有对象；生命周期事件通过显式订阅接口对外广播.
package engine

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wyfcoding/gridstore/eventbus"
	"github.com/wyfcoding/gridstore/metrics"
	"github.com/wyfcoding/gridstore/resolver"
	"github.com/wyfcoding/gridstore/xerrors"
)

// DefaultConnectTimeout 连接建立与提供者解析的默认等待上限.
const DefaultConnectTimeout = 30 * time.Second

// FileInfo 宿主中间件提供的原始字段元数据.
type FileInfo struct {
	FieldName    string
	OriginalName string
	ContentType  string
}

// StoredFile 写入成功后返回给宿主的结果描述，创建后不可变.
type StoredFile struct {
	UploadDate  time.Time
	ID          any
	Metadata    map[string]any
	Filename    string
	BucketName  string
	ContentType string
	Size        int64
}

// Engine 存储引擎实例.
type Engine struct {
	conn     *connManager
	resolver *resolver.Resolver
	bus      *eventbus.LocalBus
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type engineOptions struct {
	fileSettings   any
	resolver       *resolver.Resolver
	bus            *eventbus.LocalBus
	logger         *slog.Logger
	metrics        *metrics.Metrics
	connectTimeout time.Duration
}

// Option 配置 Engine.
type Option func(*engineOptions)

// WithFileSettings 设置每文件配置块：nil、*resolver.Settings、
// map[string]any 或 resolver.SettingsFunc.
func WithFileSettings(settings any) Option {
	return func(o *engineOptions) { o.fileSettings = settings }
}

// WithResolver 直接注入解析器，覆盖 WithFileSettings.
func WithResolver(r *resolver.Resolver) Option {
	return func(o *engineOptions) { o.resolver = r }
}

// WithLogger 注入日志器.
func WithLogger(l *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithEventBus 注入事件总线；默认每个引擎实例自带独立总线.
func WithEventBus(bus *eventbus.LocalBus) Option {
	return func(o *engineOptions) { o.bus = bus }
}

// WithMetrics 注入指标采集器.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithConnectTimeout 设置连接等待上限.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *engineOptions) { o.connectTimeout = d }
}

// New 创建引擎并异步发起连接.
// src 必须携带 URI 拨号、已建立句柄或提供者三者之一.
func New(src ConnSource, opts ...Option) (*Engine, error) {
	if src.backend == nil && src.provider == nil {
		return nil, xerrors.Newf(xerrors.KindConfiguration,
			"either a connection uri, an open handle or a provider must be configured")
	}

	o := &engineOptions{
		logger:         slog.Default(),
		connectTimeout: DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bus == nil {
		o.bus = eventbus.NewLocalBus()
	}
	if o.resolver == nil {
		o.resolver = resolver.New(o.fileSettings)
	}

	e := &Engine{
		resolver: o.resolver,
		bus:      o.bus,
		logger:   o.logger,
		metrics:  o.metrics,
	}
	e.conn = newConnManager(o.bus, o.logger, o.metrics, o.connectTimeout)
	go e.conn.initialize(src)
	return e, nil
}

// Subscribe 订阅生命周期事件 (connection / connectionFailed / file).
func (e *Engine) Subscribe(topic string, h eventbus.Handler) {
	e.bus.Subscribe(topic, h)
}

// ConnState 返回当前连接状态.
func (e *Engine) ConnState() ConnState {
	return e.conn.currentState()
}

// HandleFile 实现宿主契约的写入路径：等待连接就绪、解析目标配置、
// 把字节流写入后端，成功时广播 file 事件并返回存储记录.
// 解析器、随机源与后端的错误消息原样返回.
func (e *Engine) HandleFile(ctx context.Context, req *http.Request, stream io.Reader, info FileInfo) (*StoredFile, error) {
	backend, _, err := e.conn.await(ctx)
	if err != nil {
		return nil, err
	}

	up := &resolver.Upload{
		Request:      req,
		FieldName:    info.FieldName,
		OriginalName: info.OriginalName,
		ContentType:  info.ContentType,
	}
	// 每个上传上下文恰好产出一份写入配置
	cfg, err := e.resolver.Resolve(ctx, up)
	if err != nil {
		e.logger.Error("upload configuration resolution failed",
			"field", info.FieldName, "error", err)
		return nil, err
	}

	start := time.Now()
	ws, err := backend.OpenWriteStream(ctx, cfg)
	if err != nil {
		e.observeStore(cfg.BucketName, "failed", start, 0)
		return nil, xerrors.Classify(err, xerrors.KindBackendWrite)
	}

	written, err := io.Copy(ws, &contextReader{ctx: ctx, r: stream})
	if err != nil {
		// 中止并丢弃 partial 分块，绝不把部分写入上报为成功
		_ = ws.Abort()
		e.observeStore(cfg.BucketName, "aborted", start, 0)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, xerrors.Classify(err, xerrors.KindBackendWrite)
	}

	objInfo, err := ws.Commit()
	if err != nil {
		e.observeStore(cfg.BucketName, "failed", start, 0)
		return nil, xerrors.Classify(err, xerrors.KindBackendWrite)
	}

	stored := &StoredFile{
		ID:          objInfo.ID,
		Filename:    objInfo.Filename,
		Metadata:    cfg.Metadata,
		BucketName:  objInfo.BucketName,
		ContentType: cfg.ContentType,
		Size:        objInfo.Size,
		UploadDate:  objInfo.UploadDate,
	}
	e.observeStore(stored.BucketName, "success", start, written)
	e.logger.Info("file stored",
		"bucket", stored.BucketName, "id", stored.ID, "size", stored.Size)
	e.bus.Publish(ctx, eventbus.Event{Topic: eventbus.TopicFile, Payload: stored})
	return stored, nil
}

// RemoveFile 实现宿主契约的清理路径.
// 连接不处于 Open 状态时与写入路径使用同一前置条件错误.
func (e *Engine) RemoveFile(ctx context.Context, stored *StoredFile) error {
	backend, err := e.conn.current()
	if err != nil {
		return err
	}
	if err := backend.Delete(ctx, stored.ID, stored.BucketName); err != nil {
		if e.metrics != nil {
			e.metrics.RemovalsTotal.WithLabelValues(stored.BucketName, "failed").Inc()
		}
		return xerrors.Classify(err, xerrors.KindBackendWrite)
	}
	if e.metrics != nil {
		e.metrics.RemovalsTotal.WithLabelValues(stored.BucketName, "success").Inc()
	}
	e.logger.Info("file removed", "bucket", stored.BucketName, "id", stored.ID)
	return nil
}

// Close 释放底层连接资源.
func (e *Engine) Close(ctx context.Context) error {
	return e.conn.shutdown(ctx)
}

func (e *Engine) observeStore(bucket, status string, start time.Time, written int64) {
	if e.metrics == nil {
		return
	}
	e.metrics.StoresTotal.WithLabelValues(bucket, status).Inc()
	if status == "success" {
		e.metrics.StoreDuration.WithLabelValues(bucket).Observe(time.Since(start).Seconds())
		e.metrics.StoredBytes.Add(float64(written))
	}
}

// contextReader 让 io.Copy 在调用方取消后立即停止读取.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

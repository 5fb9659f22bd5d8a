// Package resolver 负责在写入开始前计算每次上传的目标配置.
// 每个字段都可以配置为字面量、求值函数或分步迭代器，三种形态统一
// 归一化为"值或错误"；用户函数的错误消息逐字节透传，不做包装.
package resolver

import (
	"context"
	"fmt"
	"iter"
	"net/http"

	"github.com/wyfcoding/gridstore/idgen"
	"github.com/wyfcoding/gridstore/storage"
	"github.com/wyfcoding/gridstore/xerrors"
)

// Upload 单次上传的瞬态上下文，随宿主回调创建、结果上报后销毁.
type Upload struct {
	Request      *http.Request
	FieldName    string
	OriginalName string
	ContentType  string
}

// Func 字段求值函数.
type Func[T any] func(ctx context.Context, up *Upload) (T, error)

// Steps 分步求值：迭代器逐步产出中间值，最后一个值生效；
// 迭代中途产出错误则整体失败.
type Steps[T any] func(ctx context.Context, up *Upload) iter.Seq2[T, error]

// Source 字段取值来源的标签变体 {Literal, Func, Steps}.
// 零值表示未配置，解析时落到对应默认值.
type Source[T any] struct {
	fn    Func[T]
	steps Steps[T]
	value T
	set   bool
}

// Literal 字面量来源.
func Literal[T any](v T) Source[T] {
	return Source[T]{value: v, set: true}
}

// FromFunc 函数来源.
func FromFunc[T any](fn Func[T]) Source[T] {
	return Source[T]{fn: fn}
}

// FromSteps 分步来源.
func FromSteps[T any](steps Steps[T]) Source[T] {
	return Source[T]{steps: steps}
}

// resolve 归一化取值：返回 (值, 是否已配置, 错误).
// 用户函数 panic 不会击穿请求链路，统一捕获为错误.
func (s Source[T]) resolve(ctx context.Context, up *Upload) (value T, ok bool, err error) {
	switch {
	case s.fn != nil:
		defer recoverResolve(&err)
		value, err = s.fn(ctx, up)
		return value, err == nil, err
	case s.steps != nil:
		defer recoverResolve(&err)
		for v, stepErr := range s.steps(ctx, up) {
			if stepErr != nil {
				var zero T
				return zero, false, stepErr
			}
			value, ok = v, true
		}
		return value, ok, nil
	case s.set:
		return s.value, true, nil
	default:
		var zero T
		return zero, false, nil
	}
}

// recoverResolve 把用户函数的 panic 转成错误；panic 值本身是 error 时原样保留.
func recoverResolve(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = e
			return
		}
		*err = fmt.Errorf("%v", r)
	}
}

// Settings 单次上传可解析的全部字段.
type Settings struct {
	ID             Source[string]
	BucketName     Source[string]
	Metadata       Source[map[string]any]
	ChunkSizeBytes Source[int32]
	ContentType    Source[string]
	DisableMD5     Source[bool]
}

// SettingsFunc 按上传动态计算整个配置块.
type SettingsFunc func(ctx context.Context, up *Upload) (*Settings, error)

// Resolver 上传配置解析器.
// 默认值通过构造器注入，不依赖包级可变状态.
type Resolver struct {
	settings      any // nil | *Settings | map[string]any | SettingsFunc
	names         idgen.NameGenerator
	defaultBucket string
	defaultChunk  int32
}

// Option 配置 Resolver.
type Option func(*Resolver)

// WithNameGenerator 替换默认命名器.
func WithNameGenerator(g idgen.NameGenerator) Option {
	return func(r *Resolver) { r.names = g }
}

// WithDefaultBucket 替换默认桶名.
func WithDefaultBucket(name string) Option {
	return func(r *Resolver) { r.defaultBucket = name }
}

// WithDefaultChunkSize 替换默认分块大小.
func WithDefaultChunkSize(n int32) Option {
	return func(r *Resolver) { r.defaultChunk = n }
}

// New 创建解析器.
// fileSettings 接受 nil、*Settings、map[string]any 或 SettingsFunc；
// 类型校验推迟到每次解析，非法类型会让该上传以类型错误失败.
func New(fileSettings any, opts ...Option) *Resolver {
	r := &Resolver{
		settings:      fileSettings,
		names:         idgen.NewRandomName(),
		defaultBucket: storage.DefaultBucketName,
		defaultChunk:  storage.DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 为一次上传计算写入配置，每个上传上下文恰好调用一次.
// 字段按 id → bucketName → metadata → chunkSizeBytes → contentType →
// disableMD5 顺序串行求值，首个失败字段即终止.
func (r *Resolver) Resolve(ctx context.Context, up *Upload) (storage.WriteConfig, error) {
	settings, err := r.normalize(ctx, up)
	if err != nil {
		return storage.WriteConfig{}, err
	}

	var cfg storage.WriteConfig

	id, ok, err := settings.ID.resolve(ctx, up)
	if err != nil {
		return storage.WriteConfig{}, xerrors.Classify(err, xerrors.KindResolver)
	}
	if !ok || id == "" {
		id, err = r.names.Generate()
		if err != nil {
			return storage.WriteConfig{}, xerrors.Classify(err, xerrors.KindRandomness)
		}
	}
	cfg.ID = id
	cfg.Filename = id

	bucket, ok, err := settings.BucketName.resolve(ctx, up)
	if err != nil {
		return storage.WriteConfig{}, xerrors.Classify(err, xerrors.KindResolver)
	}
	if !ok || bucket == "" {
		bucket = r.defaultBucket
	}
	cfg.BucketName = bucket

	metadata, _, err := settings.Metadata.resolve(ctx, up)
	if err != nil {
		return storage.WriteConfig{}, xerrors.Classify(err, xerrors.KindResolver)
	}
	cfg.Metadata = metadata

	chunk, ok, err := settings.ChunkSizeBytes.resolve(ctx, up)
	if err != nil {
		return storage.WriteConfig{}, xerrors.Classify(err, xerrors.KindResolver)
	}
	if !ok || chunk <= 0 {
		chunk = r.defaultChunk
	}
	cfg.ChunkSizeBytes = chunk

	contentType, ok, err := settings.ContentType.resolve(ctx, up)
	if err != nil {
		return storage.WriteConfig{}, xerrors.Classify(err, xerrors.KindResolver)
	}
	if !ok || contentType == "" {
		contentType = up.ContentType
	}
	cfg.ContentType = contentType

	disableMD5, _, err := settings.DisableMD5.resolve(ctx, up)
	if err != nil {
		return storage.WriteConfig{}, xerrors.Classify(err, xerrors.KindResolver)
	}
	cfg.DisableMD5 = disableMD5

	return cfg, nil
}

// normalize 把四种配置形态收敛为 *Settings.
func (r *Resolver) normalize(ctx context.Context, up *Upload) (*Settings, error) {
	switch v := r.settings.(type) {
	case nil:
		return &Settings{}, nil
	case *Settings:
		if v == nil {
			return &Settings{}, nil
		}
		return v, nil
	case Settings:
		return &v, nil
	case SettingsFunc:
		return callSettingsFunc(ctx, up, v)
	case func(ctx context.Context, up *Upload) (*Settings, error):
		return callSettingsFunc(ctx, up, v)
	case map[string]any:
		return settingsFromMap(v)
	default:
		return nil, xerrors.Newf(xerrors.KindConfiguration,
			"Invalid type for file settings, got %T", v)
	}
}

func callSettingsFunc(ctx context.Context, up *Upload, fn SettingsFunc) (s *Settings, err error) {
	defer func() {
		if err != nil {
			s, err = nil, xerrors.Classify(err, xerrors.KindResolver)
		} else if s == nil {
			s = &Settings{}
		}
	}()
	defer recoverResolve(&err)
	return fn(ctx, up)
}

// settingsFromMap 支持普通映射形态的静态配置.
func settingsFromMap(m map[string]any) (*Settings, error) {
	s := &Settings{}
	for key, raw := range m {
		switch key {
		case "id":
			v, ok := raw.(string)
			if !ok {
				return nil, badMapValue(key, raw)
			}
			s.ID = Literal(v)
		case "bucketName":
			v, ok := raw.(string)
			if !ok {
				return nil, badMapValue(key, raw)
			}
			s.BucketName = Literal(v)
		case "metadata":
			v, ok := raw.(map[string]any)
			if !ok {
				return nil, badMapValue(key, raw)
			}
			s.Metadata = Literal(v)
		case "chunkSizeBytes":
			v, ok := toInt32(raw)
			if !ok {
				return nil, badMapValue(key, raw)
			}
			s.ChunkSizeBytes = Literal(v)
		case "contentType":
			v, ok := raw.(string)
			if !ok {
				return nil, badMapValue(key, raw)
			}
			s.ContentType = Literal(v)
		case "disableMD5":
			v, ok := raw.(bool)
			if !ok {
				return nil, badMapValue(key, raw)
			}
			s.DisableMD5 = Literal(v)
		default:
			return nil, xerrors.Newf(xerrors.KindConfiguration,
				"Unknown file settings key %q", key)
		}
	}
	return s, nil
}

func badMapValue(key string, raw any) error {
	return xerrors.Newf(xerrors.KindConfiguration,
		"Invalid type for file settings key %q, got %T", key, raw)
}

func toInt32(raw any) (int32, bool) {
	switch v := raw.(type) {
	case int:
		return int32(v), true
	case int32:
		return v, true
	case int64:
		return int32(v), true
	case float64:
		return int32(v), true
	default:
		return 0, false
	}
}

// Package xerrors 定义了存储引擎的错误分类体系.
// 约束：Resolver/Randomness/BackendWrite 三类错误必须把底层错误的消息原样
// 透传给宿主回调，因此 Error() 只返回 cause 的原文，分类信息通过 KindOf 获取.
package xerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误的大类.
type Kind uint

const (
	KindUnknown Kind = iota
	// KindConfiguration 配置错误：既没有 URI 也没有句柄、file 设置类型非法等.
	KindConfiguration
	// KindConnection 连接建立失败、provider 返回错误、句柄已关闭.
	KindConnection
	// KindResolver 用户解析函数返回的错误，消息原样透传.
	KindResolver
	// KindRandomness 随机源故障，消息原样透传，不重试.
	KindRandomness
	// KindBackendWrite 后端写入失败，消息原样透传.
	KindBackendWrite
	// KindPrecondition 连接未就绪时尝试写入/删除.
	KindPrecondition
)

func (k Kind) String() string {
	return [...]string{
		"Unknown", "Configuration", "Connection",
		"Resolver", "Randomness", "BackendWrite", "Precondition",
	}[k]
}

// Error 携带分类的错误包装.
type Error struct {
	Cause error
	kind  Kind
}

// Error 只返回底层消息，保证逐字节透传.
func (e *Error) Error() string {
	return e.Cause.Error()
}

// Unwrap 实现 Go 1.13 解包接口.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Kind 返回错误大类.
func (e *Error) Kind() Kind {
	return e.kind
}

// Classify 为已有错误附加分类；消息不变.
// 已分类的错误保持原分类不动.
func Classify(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	e := new(Error)
	if errors.As(err, &e) {
		return err
	}
	return &Error{Cause: err, kind: kind}
}

// Newf 创建引擎自有的分类错误.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Cause: fmt.Errorf(format, args...), kind: kind}
}

// KindOf 提取错误大类；未分类的错误返回 KindUnknown.
func KindOf(err error) Kind {
	e := new(Error)
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// HTTPStatus 将错误大类映射为 HTTP 状态码，供上传服务的错误响应使用.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConfiguration, KindResolver:
		return http.StatusBadRequest
	case KindConnection, KindPrecondition:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Package idgen 提供上传对象的默认命名能力.
// 命名基于加密安全随机源生成十六进制串；随机源故障时错误原样上抛，
// 不重试、不降级到弱随机源.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"io"
)

// DefaultNameBytes 默认随机字节数，编码后得到 32 位十六进制名称.
const DefaultNameBytes = 16

// NameGenerator 定义对象命名器接口.
type NameGenerator interface {
	Generate() (string, error)
}

// RandomName 基于随机源的命名器.
// 零值不可用，通过 NewRandomName 构造.
type RandomName struct {
	source io.Reader
	size   int
}

// RandomOption 配置 RandomName.
type RandomOption func(*RandomName)

// WithSource 替换随机源，主要用于测试注入故障.
func WithSource(r io.Reader) RandomOption {
	return func(g *RandomName) { g.source = r }
}

// WithSize 设置随机字节数.
func WithSize(n int) RandomOption {
	return func(g *RandomName) { g.size = n }
}

// NewRandomName 创建默认命名器：16 字节 crypto/rand 随机数.
func NewRandomName(opts ...RandomOption) *RandomName {
	g := &RandomName{
		source: rand.Reader,
		size:   DefaultNameBytes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate 读取随机字节并十六进制编码.
// 随机源返回的错误原样返回.
func (g *RandomName) Generate() (string, error) {
	buf := make([]byte, g.size)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

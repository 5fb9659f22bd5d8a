// Package storage 定义了分块对象存储后端的通用接口，支持多驱动扩展.
// 引擎只依赖本接口；GridFS 与 MinIO 是两个具体驱动.
package storage

import (
	"context"
	"io"
	"time"
)

// 默认桶名与分块大小，对齐 GridFS 规范默认值.
const (
	DefaultBucketName = "fs"
	DefaultChunkSize  = 255 * 1024 // 255KiB
)

// WriteConfig 描述一次写入的目标位置与后端参数.
// 由上传配置解析器产出，消费恰好一次.
type WriteConfig struct {
	Metadata       map[string]any
	ID             string
	Filename       string
	BucketName     string
	ContentType    string
	ChunkSizeBytes int32
	DisableMD5     bool
}

// ObjectInfo 写入成功后的对象描述，创建后不可变.
type ObjectInfo struct {
	UploadDate  time.Time
	ID          any
	Metadata    map[string]any
	Filename    string
	BucketName  string
	ContentType string
	Size        int64
}

// WriteStream 后端写入通道.
// Commit 与 Abort 互斥且各至多调用一次；Abort 丢弃已写入的分块.
type WriteStream interface {
	io.Writer

	// Commit 结束写入并落盘，返回对象描述.
	Commit() (ObjectInfo, error)

	// Abort 中止写入并清理partial数据.
	Abort() error
}

// Backend 定义对象存储后端的通用接口.
type Backend interface {
	// OpenWriteStream 按配置打开写入通道.
	OpenWriteStream(ctx context.Context, cfg WriteConfig) (WriteStream, error)

	// Delete 删除指定桶内的对象.
	Delete(ctx context.Context, id any, bucketName string) error

	// Ping 校验后端可达且连接处于打开状态.
	Ping(ctx context.Context) error

	// Close 释放后端持有的连接资源.
	Close(ctx context.Context) error
}

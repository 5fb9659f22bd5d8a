package storage

// MinIO 驱动：同一 Backend 接口对接 S3 兼容对象存储，
// 桶名映射为 S3 bucket，对象 id 映射为 object key.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var errWriteAborted = errors.New("minio write stream aborted")

const minS3PartSize = 5 * 1024 * 1024

// MinIOConfig 封装 MinIO 驱动初始化所需的参数.
type MinIOConfig struct {
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	BucketName      string `toml:"bucket_name"` // Ping 探活使用的桶.
	UseSSL          bool   `toml:"use_ssl"`
}

// MinIOBackend 实现了 Backend 接口，对接 MinIO 或 S3 兼容存储系统.
type MinIOBackend struct {
	client *minio.Client
	probe  string // 探活桶名
}

// NewMinIOBackend 构造一个新的 MinIO 存储驱动.
func NewMinIOBackend(conf *MinIOConfig) (*MinIOBackend, error) {
	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKeyID, conf.SecretAccessKey, ""),
		Secure: conf.UseSSL,
	})
	if err != nil {
		slog.Error("failed to create minio client", "endpoint", conf.Endpoint, "error", err)
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	probe := conf.BucketName
	if probe == "" {
		probe = DefaultBucketName
	}

	slog.Info("minio backend initialized", "endpoint", conf.Endpoint, "bucket", probe)

	return &MinIOBackend{client: client, probe: probe}, nil
}

// OpenWriteStream 通过管道桥接 PutObject，得到与 GridFS 一致的写入通道语义.
func (b *MinIOBackend) OpenWriteStream(ctx context.Context, cfg WriteConfig) (WriteStream, error) {
	if b.client == nil {
		return nil, errors.New("minio client not initialized")
	}
	bucket := cfg.BucketName
	if bucket == "" {
		bucket = DefaultBucketName
	}

	pr, pw := io.Pipe()
	s := &minioWriteStream{
		pw:     pw,
		done:   make(chan minioPutResult, 1),
		cfg:    cfg,
		bucket: bucket,
	}

	go func() {
		info, err := b.client.PutObject(ctx, bucket, cfg.ID, pr, -1, minioPutOptions(cfg))
		if err != nil {
			_ = pr.CloseWithError(err)
		}
		s.done <- minioPutResult{info: info, err: err}
	}()

	return s, nil
}

// minioPutOptions 把通用写入配置映射为 PutObject 参数.
func minioPutOptions(cfg WriteConfig) minio.PutObjectOptions {
	userMeta := make(map[string]string, len(cfg.Metadata))
	for k, v := range cfg.Metadata {
		userMeta[k] = fmt.Sprint(v)
	}
	opts := minio.PutObjectOptions{
		ContentType:    cfg.ContentType,
		UserMetadata:   userMeta,
		SendContentMd5: !cfg.DisableMD5,
	}
	// S3 分片下限 5MiB；更小的分块请求交由驱动默认分片
	if cfg.ChunkSizeBytes >= minS3PartSize {
		opts.PartSize = uint64(cfg.ChunkSizeBytes)
	}
	return opts
}

// Delete 删除对象.
func (b *MinIOBackend) Delete(ctx context.Context, id any, bucketName string) error {
	if b.client == nil {
		return errors.New("minio client not initialized")
	}
	if bucketName == "" {
		bucketName = DefaultBucketName
	}
	return b.client.RemoveObject(ctx, bucketName, fmt.Sprint(id), minio.RemoveObjectOptions{})
}

// Ping 通过探活桶校验服务可达.
func (b *MinIOBackend) Ping(ctx context.Context) error {
	if b.client == nil {
		return errors.New("minio client not initialized")
	}
	if _, err := b.client.BucketExists(ctx, b.probe); err != nil {
		return err
	}
	return nil
}

// Close MinIO 客户端无持久连接，无需释放.
func (b *MinIOBackend) Close(context.Context) error {
	return nil
}

type minioPutResult struct {
	err  error
	info minio.UploadInfo
}

type minioWriteStream struct {
	pw     *io.PipeWriter
	done   chan minioPutResult
	bucket string
	cfg    WriteConfig
	size   int64
}

func (s *minioWriteStream) Write(p []byte) (int, error) {
	n, err := s.pw.Write(p)
	s.size += int64(n)
	return n, err
}

func (s *minioWriteStream) Commit() (ObjectInfo, error) {
	if err := s.pw.Close(); err != nil {
		return ObjectInfo{}, err
	}
	res := <-s.done
	if res.err != nil {
		return ObjectInfo{}, res.err
	}
	return ObjectInfo{
		ID:          s.cfg.ID,
		Filename:    s.cfg.Filename,
		BucketName:  s.bucket,
		Metadata:    s.cfg.Metadata,
		ContentType: s.cfg.ContentType,
		Size:        s.size,
		UploadDate:  time.Now().UTC(),
	}, nil
}

// Abort 中断管道，PutObject 随之失败，不会产生完整对象.
func (s *minioWriteStream) Abort() error {
	_ = s.pw.CloseWithError(errWriteAborted)
	<-s.done
	return nil
}

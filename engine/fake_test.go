package engine

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/wyfcoding/gridstore/storage"
)

// fakeBackend 内存后端，记录全部交互供断言.
type fakeBackend struct {
	mu        sync.Mutex
	pingErr   error
	openErr   error
	writeErr  error
	commitErr error
	deleteErr error
	opened    []storage.WriteConfig
	deleted   []deletedObject
	aborted   int
	committed int
	closed    int
}

type deletedObject struct {
	id     any
	bucket string
}

func (b *fakeBackend) OpenWriteStream(_ context.Context, cfg storage.WriteConfig) (storage.WriteStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opened = append(b.opened, cfg)
	return &fakeStream{backend: b, cfg: cfg}, nil
}

func (b *fakeBackend) Delete(_ context.Context, id any, bucketName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.deleted = append(b.deleted, deletedObject{id: id, bucket: bucketName})
	return nil
}

func (b *fakeBackend) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pingErr
}

func (b *fakeBackend) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.opened)
}

type fakeStream struct {
	backend *fakeBackend
	cfg     storage.WriteConfig
	buf     bytes.Buffer
}

func (s *fakeStream) Write(p []byte) (int, error) {
	s.backend.mu.Lock()
	err := s.backend.writeErr
	s.backend.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.buf.Write(p)
}

func (s *fakeStream) Commit() (storage.ObjectInfo, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if s.backend.commitErr != nil {
		return storage.ObjectInfo{}, s.backend.commitErr
	}
	s.backend.committed++
	bucket := s.cfg.BucketName
	if bucket == "" {
		bucket = storage.DefaultBucketName
	}
	return storage.ObjectInfo{
		ID:          s.cfg.ID,
		Filename:    s.cfg.Filename,
		BucketName:  bucket,
		Metadata:    s.cfg.Metadata,
		ContentType: s.cfg.ContentType,
		Size:        int64(s.buf.Len()),
		UploadDate:  time.Now().UTC(),
	}, nil
}

func (s *fakeStream) Abort() error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.aborted++
	return nil
}

// waitForState 轮询引擎连接直到到达目标状态.
func waitForState(e *Engine, want ConnState) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.ConnState() == want {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

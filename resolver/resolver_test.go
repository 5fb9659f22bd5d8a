package resolver

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/wyfcoding/gridstore/idgen"
	"github.com/wyfcoding/gridstore/storage"
	"github.com/wyfcoding/gridstore/xerrors"
)

type stubNames struct {
	name  string
	err   error
	calls int
}

func (s *stubNames) Generate() (string, error) {
	s.calls++
	return s.name, s.err
}

func testUpload() *Upload {
	return &Upload{
		FieldName:    "avatar",
		OriginalName: "me.png",
		ContentType:  "image/png",
	}
}

func TestResolveDefaults(t *testing.T) {
	r := New(nil)
	cfg, err := r.Resolve(context.Background(), testUpload())
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(cfg.ID) != idgen.DefaultNameBytes*2 {
		t.Errorf("Expected generated hex id of %d chars, got %q", idgen.DefaultNameBytes*2, cfg.ID)
	}
	if cfg.Filename != cfg.ID {
		t.Errorf("Filename %q should default to id %q", cfg.Filename, cfg.ID)
	}
	if cfg.BucketName != storage.DefaultBucketName {
		t.Errorf("Expected bucket %q, got %q", storage.DefaultBucketName, cfg.BucketName)
	}
	if cfg.ChunkSizeBytes != storage.DefaultChunkSize {
		t.Errorf("Expected chunk size %d, got %d", storage.DefaultChunkSize, cfg.ChunkSizeBytes)
	}
	if cfg.ContentType != "image/png" {
		t.Errorf("Content type should fall back to upload mimetype, got %q", cfg.ContentType)
	}
	if cfg.DisableMD5 {
		t.Error("DisableMD5 should default to false")
	}
}

func TestResolveLiteralSettings(t *testing.T) {
	r := New(&Settings{
		ID:             Literal("doc-1"),
		BucketName:     Literal("attachments"),
		Metadata:       Literal(map[string]any{"owner": "u42"}),
		ChunkSizeBytes: Literal(int32(1024)),
		ContentType:    Literal("application/pdf"),
		DisableMD5:     Literal(true),
	})
	cfg, err := r.Resolve(context.Background(), testUpload())
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if cfg.ID != "doc-1" || cfg.BucketName != "attachments" {
		t.Errorf("Unexpected destination: %+v", cfg)
	}
	if cfg.Metadata["owner"] != "u42" {
		t.Errorf("Metadata not carried through: %+v", cfg.Metadata)
	}
	if cfg.ChunkSizeBytes != 1024 || cfg.ContentType != "application/pdf" || !cfg.DisableMD5 {
		t.Errorf("Unexpected resolved config: %+v", cfg)
	}
}

func TestResolveFuncSettings(t *testing.T) {
	r := New(SettingsFunc(func(_ context.Context, up *Upload) (*Settings, error) {
		return &Settings{
			ID: FromFunc(func(context.Context, *Upload) (string, error) {
				return "fn-" + up.FieldName, nil
			}),
		}, nil
	}))
	cfg, err := r.Resolve(context.Background(), testUpload())
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if cfg.ID != "fn-avatar" {
		t.Errorf("Expected id fn-avatar, got %q", cfg.ID)
	}
}

func TestResolveMapSettings(t *testing.T) {
	r := New(map[string]any{
		"id":             "m-1",
		"bucketName":     "photos",
		"chunkSizeBytes": 2048,
		"contentType":    "image/jpeg",
		"disableMD5":     true,
		"metadata":       map[string]any{"k": "v"},
	})
	cfg, err := r.Resolve(context.Background(), testUpload())
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if cfg.ID != "m-1" || cfg.BucketName != "photos" || cfg.ChunkSizeBytes != 2048 {
		t.Errorf("Unexpected resolved config: %+v", cfg)
	}
}

func TestResolveInvalidSettingsType(t *testing.T) {
	r := New(true)
	_, err := r.Resolve(context.Background(), testUpload())
	if err == nil {
		t.Fatal("Expected type error for boolean settings")
	}
	want := "Invalid type for file settings, got bool"
	if err.Error() != want {
		t.Errorf("Got %q, want %q", err.Error(), want)
	}
	if xerrors.KindOf(err) != xerrors.KindConfiguration {
		t.Errorf("Expected configuration kind, got %v", xerrors.KindOf(err))
	}
}

func TestResolveFuncErrorVerbatim(t *testing.T) {
	boom := errors.New("tenant lookup failed")
	r := New(&Settings{
		ID: FromFunc(func(context.Context, *Upload) (string, error) {
			return "", boom
		}),
	})
	_, err := r.Resolve(context.Background(), testUpload())
	if err == nil {
		t.Fatal("Expected resolver error")
	}
	if err.Error() != boom.Error() {
		t.Errorf("Message changed: got %q, want %q", err.Error(), boom.Error())
	}
	if !errors.Is(err, boom) {
		t.Error("Original error not preserved in chain")
	}
	if xerrors.KindOf(err) != xerrors.KindResolver {
		t.Errorf("Expected resolver kind, got %v", xerrors.KindOf(err))
	}
}

func TestResolveStepsLastValueWins(t *testing.T) {
	r := New(&Settings{
		BucketName: FromSteps(func(context.Context, *Upload) iter.Seq2[string, error] {
			return func(yield func(string, error) bool) {
				if !yield("tmp", nil) {
					return
				}
				yield("final", nil)
			}
		}),
	})
	cfg, err := r.Resolve(context.Background(), testUpload())
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if cfg.BucketName != "final" {
		t.Errorf("Expected last yielded value, got %q", cfg.BucketName)
	}
}

func TestResolveStepsErrorVerbatim(t *testing.T) {
	boom := errors.New("step two exploded")
	r := New(&Settings{
		BucketName: FromSteps(func(context.Context, *Upload) iter.Seq2[string, error] {
			return func(yield func(string, error) bool) {
				if !yield("tmp", nil) {
					return
				}
				yield("", boom)
			}
		}),
	})
	_, err := r.Resolve(context.Background(), testUpload())
	if err == nil {
		t.Fatal("Expected steps error")
	}
	if err.Error() != boom.Error() {
		t.Errorf("Message changed: got %q, want %q", err.Error(), boom.Error())
	}
}

func TestResolvePanicCaptured(t *testing.T) {
	boom := errors.New("panic payload")
	r := New(&Settings{
		ID: FromFunc(func(context.Context, *Upload) (string, error) {
			panic(boom)
		}),
	})
	_, err := r.Resolve(context.Background(), testUpload())
	if err == nil {
		t.Fatal("Expected panic to surface as error")
	}
	if err.Error() != boom.Error() {
		t.Errorf("Message changed: got %q, want %q", err.Error(), boom.Error())
	}
}

func TestResolveRandomnessFailureOnce(t *testing.T) {
	boom := errors.New("rng offline")
	names := &stubNames{err: boom}
	r := New(nil, WithNameGenerator(names))

	_, err := r.Resolve(context.Background(), testUpload())
	if err == nil {
		t.Fatal("Expected randomness error")
	}
	if err.Error() != boom.Error() {
		t.Errorf("Message changed: got %q, want %q", err.Error(), boom.Error())
	}
	if xerrors.KindOf(err) != xerrors.KindRandomness {
		t.Errorf("Expected randomness kind, got %v", xerrors.KindOf(err))
	}
	if names.calls != 1 {
		t.Errorf("Name generator called %d times, want exactly 1", names.calls)
	}
}

func TestResolveFirstFailingFieldWins(t *testing.T) {
	idErr := errors.New("id failed")
	bucketCalled := false
	r := New(&Settings{
		ID: FromFunc(func(context.Context, *Upload) (string, error) {
			return "", idErr
		}),
		BucketName: FromFunc(func(context.Context, *Upload) (string, error) {
			bucketCalled = true
			return "", errors.New("bucket failed")
		}),
	})
	_, err := r.Resolve(context.Background(), testUpload())
	if err == nil || err.Error() != idErr.Error() {
		t.Fatalf("Expected id error first, got %v", err)
	}
	if bucketCalled {
		t.Error("Later field resolved after earlier failure")
	}
}

func TestResolveMapBadValueType(t *testing.T) {
	r := New(map[string]any{"chunkSizeBytes": "big"})
	_, err := r.Resolve(context.Background(), testUpload())
	if err == nil {
		t.Fatal("Expected map value type error")
	}
	want := `Invalid type for file settings key "chunkSizeBytes", got string`
	if err.Error() != want {
		t.Errorf("Got %q, want %q", err.Error(), want)
	}
}

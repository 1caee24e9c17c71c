package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestFilesystemPutGetHead(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	ctx := context.Background()

	info, err := fs.Put(ctx, "sess_membrane_potential.nwb", strings.NewReader("payload"), PutOptions{ContentType: "application/x-nwb+json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("payload")) {
		t.Fatalf("size = %d", info.Size)
	}
	if info.Checksum == "" {
		t.Fatal("missing checksum")
	}

	got, rc, err := fs.Get(ctx, "sess_membrane_potential.nwb")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("data = %q", data)
	}
	if got.ContentType != "application/x-nwb+json" {
		t.Fatalf("content type = %q", got.ContentType)
	}

	head, err := fs.Head(ctx, "sess_membrane_potential.nwb")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Checksum != info.Checksum {
		t.Fatalf("checksum mismatch: %q vs %q", head.Checksum, info.Checksum)
	}
}

func TestFilesystemPutIsCreateOnly(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	ctx := context.Background()
	if _, err := fs.Put(ctx, "key.nwb", strings.NewReader("one"), PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := fs.Put(ctx, "key.nwb", strings.NewReader("two"), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("second put error = %v, want ErrExists", err)
	}
	_, rc, err := fs.Get(ctx, "key.nwb")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	if string(data) != "one" {
		t.Fatalf("original blob replaced: %q", data)
	}
}

func TestFilesystemRejectsUnsafeKeys(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "../escape", "/abs", "a/../../b"} {
		if _, err := fs.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected rejection for key %q", key)
		}
	}
}

func TestFilesystemDeleteAndList(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"a.nwb", "b.nwb", "other.bin"} {
		if _, err := fs.Put(ctx, key, strings.NewReader(key), PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	infos, err := fs.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("list returned %d entries", len(infos))
	}
	if infos[0].Key != "a.nwb" || infos[1].Key != "b.nwb" {
		t.Fatalf("list order: %v", infos)
	}

	removed, err := fs.Delete(ctx, "a.nwb")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	removed, err = fs.Delete(ctx, "a.nwb")
	if err != nil || removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}
	if _, err := fs.Head(ctx, "a.nwb"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("head after delete: %v", err)
	}
}

func TestPutFileReplicatesAndSkipsExisting(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "sess_membrane_potential.nwb")
	if err := os.WriteFile(src, []byte("derived container"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	if err := PutFile(ctx, fs, src); err != nil {
		t.Fatalf("put file: %v", err)
	}
	info, err := fs.Head(ctx, "sess_membrane_potential.nwb")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.ContentType != containerContentType {
		t.Fatalf("content type = %q", info.ContentType)
	}

	// A second replication of the same artifact is a no-op, not a failure.
	if err := PutFile(ctx, fs, src); err != nil {
		t.Fatalf("repeat put file: %v", err)
	}

	if err := PutFile(ctx, fs, filepath.Join(t.TempDir(), "absent.nwb")); err == nil {
		t.Fatal("expected error for missing source file")
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverFilesystem, Root: t.TempDir()})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if s.Driver() != DriverFilesystem {
		t.Fatalf("driver = %s", s.Driver())
	}
	s, err = Open(ctx, Config{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if s.Driver() != DriverMemory {
		t.Fatalf("driver = %s", s.Driver())
	}
	if _, err := Open(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatal("expected error for s3 without bucket")
	}
}

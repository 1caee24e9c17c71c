package archive

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	info, err := m.Put(ctx, "a.nwb", strings.NewReader("alpha"), PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 5 || info.Checksum == "" {
		t.Fatalf("info = %+v", info)
	}
	if _, err := m.Put(ctx, "a.nwb", strings.NewReader("beta"), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate put error = %v", err)
	}

	got, rc, err := m.Get(ctx, "a.nwb")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "alpha" || got.ContentType != "application/json" {
		t.Fatalf("get returned %q / %+v", data, got)
	}

	if _, err := m.Head(ctx, "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("head missing: %v", err)
	}

	if _, err := m.Put(ctx, "b.nwb", strings.NewReader("x"), PutOptions{}); err != nil {
		t.Fatalf("put b: %v", err)
	}
	infos, err := m.List(ctx, "")
	if err != nil || len(infos) != 2 || infos[0].Key != "a.nwb" {
		t.Fatalf("list: %v %v", infos, err)
	}
	infos, err = m.List(ctx, "b")
	if err != nil || len(infos) != 1 {
		t.Fatalf("prefix list: %v %v", infos, err)
	}

	removed, err := m.Delete(ctx, "a.nwb")
	if err != nil || !removed {
		t.Fatalf("delete: %v %v", removed, err)
	}
	removed, err = m.Delete(ctx, "a.nwb")
	if err != nil || removed {
		t.Fatalf("repeat delete: %v %v", removed, err)
	}
}

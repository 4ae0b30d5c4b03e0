package blob

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	fsStore, err := Open(ctx, Config{Driver: DriverFilesystem, FSRoot: t.TempDir()})
	if err != nil || fsStore.Driver() != DriverFilesystem {
		t.Fatalf("open fs: %v", err)
	}
	def, err := Open(ctx, Config{FSRoot: t.TempDir()})
	if err != nil || def.Driver() != DriverFilesystem {
		t.Fatalf("empty driver should default to fs: %v", err)
	}
	mem, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("open memory: %v", err)
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected s3 without bucket to fail")
	}
	if _, err := Open(ctx, Config{Driver: "gcs"}); err == nil || !strings.Contains(err.Error(), "gcs") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}

func TestBackendsShareSemantics(t *testing.T) {
	ctx := context.Background()
	s3Store, err := NewS3Mock("reports")
	if err != nil {
		t.Fatalf("s3 mock: %v", err)
	}
	fsStore, err := Open(ctx, Config{Driver: DriverFilesystem, FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	for _, s := range []Store{NewMemory(), fsStore, s3Store} {
		if _, err := s.Put(ctx, "reports/x.json", strings.NewReader("one"), PutOptions{}); err != nil {
			t.Fatalf("%s put: %v", s.Driver(), err)
		}
		obj, err := s.Put(ctx, "reports/x.json", strings.NewReader("three"), PutOptions{})
		if err != nil || obj.Size != 5 {
			t.Fatalf("%s overwrite: %+v %v", s.Driver(), obj, err)
		}
		if _, err := s.Head(ctx, "reports/missing.json"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", s.Driver(), err)
		}
	}
}

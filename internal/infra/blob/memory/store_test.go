package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"labbench/internal/blob/core"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s.nowFn = func() time.Time { return at }

	md := map[string]string{"session": "s1"}
	obj, err := s.Put(ctx, "reports/ph/s1.json", strings.NewReader(`{"a":1}`), core.PutOptions{ContentType: "application/json", Metadata: md})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	md["session"] = "mutated"
	if obj.Size != 7 || obj.ETag == "" || !obj.LastModified.Equal(at) {
		t.Fatalf("unexpected object %+v", obj)
	}

	got, rc, err := s.Get(ctx, "reports/ph/s1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"a":1}` || got.Metadata["session"] != "s1" {
		t.Fatalf("unexpected blob %q %+v", body, got)
	}

	if _, err := s.Put(ctx, "reports/ph/s1.json", strings.NewReader(`{}`), core.PutOptions{}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	head, err := s.Head(ctx, "reports/ph/s1.json")
	if err != nil || head.Size != 2 {
		t.Fatalf("overwrite not visible: %+v %v", head, err)
	}
}

func TestMemoryStoreListDeleteAndErrors(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"reports/b/2.json", "reports/a/1.json", "other/x"} {
		if _, err := s.Put(ctx, k, strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := s.List(ctx, "reports/")
	if err != nil || len(list) != 2 || list[0].Key != "reports/a/1.json" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	if ok, _ := s.Delete(ctx, "other/x"); !ok {
		t.Fatalf("expected delete to report existing blob")
	}
	if ok, _ := s.Delete(ctx, "other/x"); ok {
		t.Fatalf("second delete should report missing blob")
	}
	if _, _, err := s.Get(ctx, "other/x"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Put(ctx, " ", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := s.PresignURL(ctx, "reports/a/1.json", time.Minute); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

package history_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"magpie/internal/history"
	"magpie/internal/testsupport"
)

func exerciseRecorder(t *testing.T, rec history.Recorder, limit int) {
	t.Helper()
	ctx := context.Background()

	if err := rec.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range limit + 1 {
		err := rec.Record(ctx, history.Record{
			ID:        fmt.Sprintf("job-%02d", i),
			ImageURL:  fmt.Sprintf("http://gpu:8188/view?filename=%02d.png", i),
			Prompt:    fmt.Sprintf("prompt %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Width:     1024,
			Height:    768,
			MenuID:    "t2i",
		})
		if err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	records, err := rec.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != limit {
		t.Fatalf("expected %d records, got %d", limit, len(records))
	}
	if got, want := records[0].ID, fmt.Sprintf("job-%02d", limit); got != want {
		t.Fatalf("expected newest %s first, got %s", want, got)
	}
	if got := records[len(records)-1].ID; got != "job-01" {
		t.Fatalf("expected oldest surviving record job-01, got %s", got)
	}
	if !records[0].Timestamp.Equal(base.Add(time.Duration(limit) * time.Second)) {
		t.Fatalf("unexpected timestamp %v", records[0].Timestamp)
	}

	if err := rec.Record(ctx, history.Record{ID: "untitled", TextOutput: "a red fox"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	records, err = rec.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if records[0].Prompt != history.DefaultPrompt || records[0].TextOutput != "a red fox" {
		t.Fatalf("unexpected defaulted record: %+v", records[0])
	}

	if err := rec.Record(ctx, history.Record{Prompt: "no id"}); err == nil {
		t.Fatal("expected error for record without id")
	}

	if err := rec.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	records, err = rec.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty history after clear, got %d", len(records))
	}
}

func TestSQLRecorderCapsAtLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	exerciseRecorder(t, history.NewSQLRecorder(store.DB(), 0), history.DefaultLimit)
}

func TestSQLRecorderCustomLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryLimit(3))
	store := testsupport.MustOpenStore(t, cfg)

	rec, closeFn, err := history.Open(context.Background(), cfg, store.DB())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer closeFn()
	exerciseRecorder(t, rec, 3)
}

func TestSQLRecorderConcurrentWriters(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryLimit(10))
	store := testsupport.MustOpenStore(t, cfg)
	rec := history.NewSQLRecorder(store.DB(), 10)
	ctx := context.Background()

	const writers = 40
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- rec.Record(ctx, history.Record{
				ID:        fmt.Sprintf("job-%02d", i),
				Prompt:    "concurrent",
				Timestamp: time.Now(),
			})
		}()
	}
	wg.Wait()
	close(errs)

	failed := 0
	var first error
	for err := range errs {
		if err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	if failed > 0 {
		t.Fatalf("%d of %d concurrent Record calls failed; first: %v", failed, writers, first)
	}

	records, err := rec.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("expected cap of 10 records, got %d", len(records))
	}
	var count int
	if err := store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&count); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if count != 10 {
		t.Fatalf("expected 10 stored rows, got %d", count)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.History.Backend = "memcached"
	if _, _, err := history.Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	cfg.History.Backend = "sqlite"
	if _, _, err := history.Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error when sqlite backend has no database")
	}
}

func TestRedisRecorder(t *testing.T) {
	url := os.Getenv("MAGPIE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MAGPIE_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	key := fmt.Sprintf("magpie:test:%d", time.Now().UnixNano())
	rec, err := history.NewRedisRecorder(ctx, url, key, 5)
	if err != nil {
		t.Fatalf("NewRedisRecorder failed: %v", err)
	}
	t.Cleanup(func() {
		_ = rec.Clear(ctx)
		_ = rec.Close()
	})
	exerciseRecorder(t, rec, 5)
}

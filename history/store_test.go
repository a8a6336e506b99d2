package history

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/dslwatch/dslwatch/stats"
	"github.com/hazyhaar/dslwatch/idgen"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	s := NewStore(db, WithIDGenerator(idgen.Sequence("smp_")))
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func batch(at time.Time, crcDown float64) Batch {
	return Batch{
		SessionID: "sess_1",
		Page:      "dashboard",
		At:        at,
		Snapshot: stats.Snapshot{
			stats.KeyUptime:    {Shape: stats.Single, Text: "1d 00:00:01"},
			stats.KeyCRCErrors: {Shape: stats.Dual, Pair: stats.Pair{Downstream: crcDown, Upstream: 2}},
		},
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	t0 := time.UnixMilli(1_700_000_000_000)

	if err := s.Record(ctx, batch(t0, 3)); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, batch(t0.Add(5*time.Second), 4)); err != nil {
		t.Fatal(err)
	}

	all, err := s.Recent(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("samples: got %d, want 4", len(all))
	}

	crc, err := s.Recent(ctx, stats.KeyCRCErrors, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(crc) != 2 {
		t.Fatalf("crc samples: got %d, want 2", len(crc))
	}
	if crc[0].Value.Pair.Downstream != 4 {
		t.Errorf("newest first: got %+v", crc[0].Value)
	}
	if !crc[0].At.Equal(t0.Add(5 * time.Second)) {
		t.Errorf("at: got %v", crc[0].At)
	}
	if crc[0].SessionID != "sess_1" || crc[0].Page != "dashboard" {
		t.Errorf("session/page: %+v", crc[0])
	}

	up, _ := s.Recent(ctx, stats.KeyUptime, 1)
	if len(up) != 1 || up[0].Value.Shape != stats.Single || up[0].Value.Text != "1d 00:00:01" {
		t.Errorf("uptime sample: %+v", up)
	}
}

func TestStore_NaNRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	if err := s.Record(ctx, batch(time.Now(), math.NaN())); err != nil {
		t.Fatal(err)
	}
	crc, _ := s.Recent(ctx, stats.KeyCRCErrors, 1)
	if len(crc) != 1 {
		t.Fatal("no sample")
	}
	if !math.IsNaN(crc[0].Value.Pair.Downstream) || crc[0].Value.Pair.Upstream != 2 {
		t.Errorf("pair: %+v", crc[0].Value.Pair)
	}
}

func TestStore_EmptySnapshotIsNoop(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	if err := s.Record(ctx, Batch{SessionID: "x", At: time.Now()}); err != nil {
		t.Fatal(err)
	}
	all, _ := s.Recent(ctx, "", 10)
	if len(all) != 0 {
		t.Errorf("got %d samples", len(all))
	}
}

func TestStore_DefaultIDs(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	s := NewStore(db)
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, batch(time.Now(), 1)); err != nil {
		t.Fatal(err)
	}
	all, err := s.Recent(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID == all[1].ID {
		t.Fatalf("samples: %+v", all)
	}
	for _, smp := range all {
		if !strings.HasPrefix(smp.ID, "smp_") || len(smp.ID) != len("smp_")+36 {
			t.Errorf("id %q: want smp_ + uuid", smp.ID)
		}
	}
}

func TestStore_Cleanup(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	s.Record(ctx, batch(old, 1))
	s.Record(ctx, batch(time.Now(), 2))

	n, err := s.Cleanup(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted: got %d, want 2", n)
	}
	all, _ := s.Recent(ctx, "", 10)
	if len(all) != 2 {
		t.Errorf("remaining: got %d, want 2", len(all))
	}
}

func TestRecorder_FlushOnClose(t *testing.T) {
	s := setupStore(t)
	r := NewRecorder(s, 8, nil)
	r.Record(batch(time.Now(), 1))
	r.Record(batch(time.Now().Add(time.Second), 2))
	r.Close()
	r.Close()

	all, err := s.Recent(context.Background(), "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("samples after close: got %d, want 4", len(all))
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "history.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode: got %q, want wal", mode)
	}
}

// CLAUDE:SUMMARY SQLite history of line metric samples with an async recorder fed by the polling loop.
// Package history keeps a time series of extracted line metrics in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/dslwatch/dslwatch/stats"
	"github.com/hazyhaar/dslwatch/idgen"
)

const schema = `
CREATE TABLE IF NOT EXISTS line_samples (
	sample_id   TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	page        TEXT NOT NULL,
	sampled_at  INTEGER NOT NULL,
	metric      TEXT NOT NULL,
	text_value  TEXT,
	downstream  REAL,
	upstream    REAL
);
CREATE INDEX IF NOT EXISTS idx_line_samples_metric_time ON line_samples(metric, sampled_at DESC);
CREATE INDEX IF NOT EXISTS idx_line_samples_time ON line_samples(sampled_at);
`

// Batch is one successful cycle's snapshot.
type Batch struct {
	SessionID string
	Page      string
	At        time.Time
	Snapshot  stats.Snapshot
}

// Sample is one stored metric value.
type Sample struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Page      string      `json:"page"`
	At        time.Time   `json:"at"`
	Metric    string      `json:"metric"`
	Value     stats.Value `json:"value"`
}

// Store reads and writes samples.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the sample id generator. Default: smp_ + UUIDv7.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore wraps db. Call Init before use.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, newID: idgen.Prefixed("smp_", idgen.UUIDv7())}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the schema.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("history: init schema: %w", err)
	}
	return nil
}

// Record stores every metric of the batch in one transaction. Metrics are
// written in key order.
func (s *Store) Record(ctx context.Context, b Batch) error {
	if len(b.Snapshot) == 0 {
		return nil
	}
	keys := make([]string, 0, len(b.Snapshot))
	for k := range b.Snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	at := b.At.UnixMilli()

	return runTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO line_samples
			(sample_id, session_id, page, sampled_at, metric, text_value, downstream, upstream)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("history: prepare: %w", err)
		}
		defer stmt.Close()
		for _, k := range keys {
			v := b.Snapshot[k]
			var text, down, up any
			switch v.Shape {
			case stats.Dual:
				down, up = nullable(v.Pair.Downstream), nullable(v.Pair.Upstream)
			default:
				text = v.Text
			}
			if _, err := stmt.ExecContext(ctx, s.newID(), b.SessionID, b.Page, at, k, text, down, up); err != nil {
				return fmt.Errorf("history: insert %s: %w", k, err)
			}
		}
		return nil
	})
}

func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// Recent returns up to limit samples, newest first. An empty metric
// returns all metrics. limit <= 0 means 100.
func (s *Store) Recent(ctx context.Context, metric string, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT sample_id, session_id, page, sampled_at, metric, text_value, downstream, upstream
		FROM line_samples`
	var args []any
	if metric != "" {
		q += " WHERE metric = ?"
		args = append(args, metric)
	}
	q += " ORDER BY sampled_at DESC, sample_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			smp      Sample
			at       int64
			text     sql.NullString
			down, up sql.NullFloat64
		)
		if err := rows.Scan(&smp.ID, &smp.SessionID, &smp.Page, &at, &smp.Metric, &text, &down, &up); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		smp.At = time.UnixMilli(at)
		if text.Valid {
			smp.Value = stats.Value{Shape: stats.Single, Text: text.String}
		} else {
			smp.Value = stats.Value{Shape: stats.Dual, Pair: stats.Pair{
				Downstream: orNaN(down),
				Upstream:   orNaN(up),
			}}
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// Cleanup deletes samples older than before and returns how many went.
func (s *Store) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM line_samples WHERE sampled_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("history: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Recorder persists batches off the polling goroutine.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	ch     chan Batch
	done   chan struct{}
	once   sync.Once
}

// NewRecorder starts a background writer. bufferSize <= 0 means 64.
func NewRecorder(store *Store, bufferSize int, logger *slog.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:  store,
		logger: logger,
		ch:     make(chan Batch, bufferSize),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues b. When the buffer is full the batch is dropped with a
// warning; the polling loop must never wait on disk.
func (r *Recorder) Record(b Batch) {
	select {
	case r.ch <- b:
	default:
		r.logger.Warn("history: buffer full, sample dropped", "session", b.SessionID)
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for b := range r.ch {
		if err := r.store.Record(context.Background(), b); err != nil {
			r.logger.Error("history: record failed", "session", b.SessionID, "error", err)
		}
	}
}

// Close flushes queued batches and stops the writer. Record must not be
// called after Close.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.ch) })
	<-r.done
}

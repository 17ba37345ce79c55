package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/rickgao/aodata-ingest/internal/buffer"
	"github.com/rickgao/aodata-ingest/internal/model"
)

var errStore = errors.New("store unavailable")

// fakeStore records writes and fails the next failUpserts upserts.
type fakeStore struct {
	mu          sync.Mutex
	failUpserts int
	failBackup  bool
	upserts     [][]model.Order
	backups     map[uuid.UUID][]model.Order
	ctxErrs     []error
}

func newFakeStore() *fakeStore {
	return &fakeStore{backups: make(map[uuid.UUID][]model.Order)}
}

func (s *fakeStore) Upsert(ctx context.Context, rows []model.Order) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	if s.failUpserts > 0 {
		s.failUpserts--
		return 0, errStore
	}
	s.upserts = append(s.upserts, append([]model.Order(nil), rows...))
	return int64(len(rows)), nil
}

func (s *fakeStore) Backup(_ context.Context, batchID uuid.UUID, rows []model.Order) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failBackup {
		return 0, errStore
	}
	s.backups[batchID] = append(s.backups[batchID], rows...)
	return int64(len(rows)), nil
}

func (s *fakeStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts)
}

// fakeDeadLetter collects letters in memory.
type fakeDeadLetter struct {
	mu      sync.Mutex
	letters []Letter[model.Order]
}

func (d *fakeDeadLetter) Write(_ context.Context, letters []Letter[model.Order]) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.letters = append(d.letters, letters...)
	return nil
}

func orderKey(o model.Order) int64 { return o.Key() }

func order(id, price int64) model.Order {
	return model.Order{ID: id, ItemUniqueName: "T4_BAG", LocationID: "0007", UnitPriceSilver: price}
}

func newTestWriter(store Store[model.Order], dl DeadLetter[model.Order]) (*BatchWriter[model.Order, int64], *buffer.Buffer[model.Order]) {
	buf := buffer.New[model.Order](0)
	cfg := DefaultConfig(string(model.KindOrder))
	cfg.MaxAttempts = 3
	w := New(cfg, buf, orderKey, store, dl, nil, nil)
	return w, buf
}

func ids(orders []model.Order) map[int64]int64 {
	out := make(map[int64]int64, len(orders))
	for _, o := range orders {
		out[o.ID] = o.UnitPriceSilver
	}
	return out
}

func TestDedup_MostRecentWins(t *testing.T) {
	entries := []buffer.Entry[model.Order]{
		{Seq: 1, Value: order(1, 100)},
		{Seq: 2, Value: order(2, 200)},
		{Seq: 3, Value: order(1, 101)},
		{Seq: 4, Value: order(1, 102)},
	}

	unique := Dedup(entries, orderKey)

	if len(unique) != 2 {
		t.Fatalf("len(unique) = %d, want 2", len(unique))
	}
	if unique[0].Seq != 4 || unique[0].Value.UnitPriceSilver != 102 {
		t.Errorf("unique[0] = seq %d price %d, want seq 4 price 102", unique[0].Seq, unique[0].Value.UnitPriceSilver)
	}
	if unique[1].Seq != 2 {
		t.Errorf("unique[1].Seq = %d, want 2", unique[1].Seq)
	}
}

func TestDedup_RequeuedOlderLoses(t *testing.T) {
	// A requeued entry sits at the tail but keeps its older sequence.
	entries := []buffer.Entry[model.Order]{
		{Seq: 5, Value: order(1, 500)},
		{Seq: 2, Attempts: 1, Value: order(1, 200)},
	}

	unique := Dedup(entries, orderKey)

	if len(unique) != 1 || unique[0].Value.UnitPriceSilver != 500 {
		t.Errorf("Dedup() = %+v, want only seq 5", unique)
	}
}

func TestDedup_HistoryKey(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	point := func(silver int64, loc *time.Location) model.HistoryPoint {
		return model.HistoryPoint{ItemUniqueName: "T5_ORE", LocationID: "3005", Timestamp: ts.In(loc), SilverAmount: silver}
	}
	entries := []buffer.Entry[model.HistoryPoint]{
		{Seq: 1, Value: point(10, time.UTC)},
		{Seq: 2, Value: point(20, time.FixedZone("x", 3600))},
	}

	unique := Dedup(entries, model.HistoryPoint.Key)

	if len(unique) != 1 || unique[0].Value.SilverAmount != 20 {
		t.Errorf("Dedup() = %+v, want one point with silver 20", unique)
	}
}

func TestBatchWriter_FlushEmpty(t *testing.T) {
	store := newFakeStore()
	w, _ := newTestWriter(store, nil)

	res, err := w.Flush(context.Background(), false)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if res.Drained != 0 || store.upsertCount() != 0 {
		t.Errorf("empty flush wrote: res = %+v, upserts = %d", res, store.upsertCount())
	}
}

func TestBatchWriter_FlushWritesUniqueAndBackup(t *testing.T) {
	store := newFakeStore()
	w, buf := newTestWriter(store, nil)

	buf.Append(order(1, 100))
	buf.Append(order(2, 200))
	buf.Append(order(1, 150))

	res, err := w.Flush(context.Background(), false)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if res.Drained != 3 || res.Unique != 2 || res.Written != 2 {
		t.Errorf("Flush() = %+v, want drained 3 unique 2 written 2", res)
	}

	got := ids(store.upserts[0])
	if got[1] != 150 || got[2] != 200 {
		t.Errorf("upserted = %v, want {1:150 2:200}", got)
	}
	if len(store.backups[res.BatchID]) != 2 {
		t.Errorf("backup rows for batch = %d, want 2", len(store.backups[res.BatchID]))
	}
	if buf.Len() != 0 {
		t.Errorf("buffer Len() = %d, want 0", buf.Len())
	}

	stats := w.Stats()
	if stats.Duplicates != 1 || stats.Written != 2 || stats.Flushes != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestBatchWriter_RetryRequeues(t *testing.T) {
	store := newFakeStore()
	store.failUpserts = 1
	w, buf := newTestWriter(store, nil)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	buf.Append(order(1, 100))
	buf.Append(order(2, 200))
	buf.Append(order(3, 300))

	res, err := w.Flush(context.Background(), false)
	if !errors.Is(err, ErrWriteFailed) || !errors.Is(err, errStore) {
		t.Fatalf("Flush() error = %v, want ErrWriteFailed wrapping errStore", err)
	}
	if res.Requeued != 3 {
		t.Errorf("Requeued = %d, want 3", res.Requeued)
	}
	if buf.Len() != 3 {
		t.Fatalf("buffer Len() = %d, want 3", buf.Len())
	}
	if !res.RetryAt.After(now) {
		t.Errorf("RetryAt = %v, want after %v", res.RetryAt, now)
	}

	// Inside the backoff window nothing is drained.
	res, err = w.Flush(context.Background(), false)
	if err != nil || !res.Skipped {
		t.Errorf("Flush() in backoff = %+v, %v, want skipped", res, err)
	}
	if buf.Len() != 3 {
		t.Errorf("buffer Len() = %d after skip, want 3", buf.Len())
	}

	now = now.Add(2 * time.Minute)
	res, err = w.Flush(context.Background(), false)
	if err != nil {
		t.Fatalf("retry Flush() error = %v", err)
	}
	if res.Written != 3 {
		t.Errorf("Written = %d, want 3", res.Written)
	}
	got := ids(store.upserts[0])
	for _, id := range []int64{1, 2, 3} {
		if _, ok := got[id]; !ok {
			t.Errorf("order %d missing after retry", id)
		}
	}
	if !w.retryAt.IsZero() {
		t.Errorf("retryAt = %v after success, want zero", w.retryAt)
	}
}

func TestBatchWriter_RetryKeepsNewest(t *testing.T) {
	store := newFakeStore()
	store.failUpserts = 1
	w, buf := newTestWriter(store, nil)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	buf.Append(order(1, 100))
	w.Flush(context.Background(), false)

	buf.Append(order(1, 999))
	now = now.Add(2 * time.Minute)
	if _, err := w.Flush(context.Background(), false); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	rows := store.upserts[0]
	if len(rows) != 1 || rows[0].UnitPriceSilver != 999 {
		t.Errorf("upserted = %+v, want only price 999", rows)
	}
}

func TestBatchWriter_MaxAttemptsDeadLetters(t *testing.T) {
	store := newFakeStore()
	store.failUpserts = 10
	dl := &fakeDeadLetter{}
	w, buf := newTestWriter(store, dl)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	buf.Append(order(7, 700))
	for i := 0; i < 3; i++ {
		w.Flush(context.Background(), false)
		now = now.Add(2 * time.Minute)
	}

	if buf.Len() != 0 {
		t.Errorf("buffer Len() = %d, want 0", buf.Len())
	}
	if len(dl.letters) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dl.letters))
	}
	l := dl.letters[0]
	if l.Attempts != 3 || l.Value.ID != 7 || l.Kind != string(model.KindOrder) {
		t.Errorf("letter = %+v, want attempts 3 for order 7", l)
	}
	if l.Reason == "" {
		t.Error("letter reason is empty")
	}
	if got := w.Stats().DeadLettered; got != 1 {
		t.Errorf("Stats().DeadLettered = %d, want 1", got)
	}
}

func TestBatchWriter_FinalFlushIgnoresBackoff(t *testing.T) {
	store := newFakeStore()
	store.failUpserts = 1
	w, buf := newTestWriter(store, nil)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	buf.Append(order(1, 100))
	w.Flush(context.Background(), false)

	res, err := w.Flush(context.Background(), true)
	if err != nil {
		t.Fatalf("final Flush() error = %v", err)
	}
	if res.Skipped || res.Written != 1 {
		t.Errorf("final Flush() = %+v, want written 1", res)
	}
}

func TestBatchWriter_FinalFailureDeadLettersAll(t *testing.T) {
	store := newFakeStore()
	store.failUpserts = 1
	dl := &fakeDeadLetter{}
	w, buf := newTestWriter(store, dl)

	buf.Append(order(1, 100))
	buf.Append(order(2, 200))

	res, err := w.Flush(context.Background(), true)
	if err == nil {
		t.Fatal("final Flush() should return the write error")
	}
	if res.Requeued != 0 || res.DeadLettered != 2 {
		t.Errorf("final Flush() = %+v, want 0 requeued 2 dead-lettered", res)
	}
	if buf.Len() != 0 {
		t.Errorf("buffer Len() = %d, want 0", buf.Len())
	}
	if len(dl.letters) != 2 {
		t.Errorf("dead letters = %d, want 2", len(dl.letters))
	}
}

func TestBatchWriter_BackupFailureNotRequeued(t *testing.T) {
	store := newFakeStore()
	store.failBackup = true
	w, buf := newTestWriter(store, nil)

	buf.Append(order(1, 100))

	res, err := w.Flush(context.Background(), false)
	if err != nil {
		t.Fatalf("Flush() error = %v, want nil on backup failure", err)
	}
	if res.BackupErr == nil {
		t.Error("BackupErr = nil, want error")
	}
	if buf.Len() != 0 {
		t.Errorf("buffer Len() = %d, want 0", buf.Len())
	}
	if got := w.Stats().BackupErrors; got != 1 {
		t.Errorf("Stats().BackupErrors = %d, want 1", got)
	}
}

func TestBatchWriter_BackupRunsWhenUpsertFails(t *testing.T) {
	store := newFakeStore()
	store.failUpserts = 1
	w, buf := newTestWriter(store, nil)

	buf.Append(order(1, 100))
	buf.Append(order(2, 200))

	res, err := w.Flush(context.Background(), false)
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("Flush() error = %v, want ErrWriteFailed", err)
	}
	if res.BackedUp != 2 {
		t.Errorf("BackedUp = %d, want 2", res.BackedUp)
	}
	rows, ok := store.backups[res.BatchID]
	if !ok {
		t.Fatalf("no backup for batch %s", res.BatchID)
	}
	if len(rows) != 2 {
		t.Errorf("backup rows = %d, want 2", len(rows))
	}
	if res.Requeued != 2 || buf.Len() != 2 {
		t.Errorf("Requeued = %d, buffer Len() = %d, want 2 and 2", res.Requeued, buf.Len())
	}
	if got := w.Stats().BackedUp; got != 2 {
		t.Errorf("Stats().BackedUp = %d, want 2", got)
	}
}

func TestBatchWriter_BackupRunsWhenFinalFlushFails(t *testing.T) {
	store := newFakeStore()
	store.failUpserts = 1
	dl := &fakeDeadLetter{}
	w, buf := newTestWriter(store, dl)

	buf.Append(order(1, 100))

	res, err := w.Flush(context.Background(), true)
	if err == nil {
		t.Fatal("Flush() error = nil, want error")
	}
	if res.DeadLettered != 1 {
		t.Errorf("DeadLettered = %d, want 1", res.DeadLettered)
	}
	if got := len(store.backups[res.BatchID]); got != 1 {
		t.Errorf("backup rows = %d, want 1", got)
	}
}

func TestBatchWriter_WriteSurvivesCancellation(t *testing.T) {
	store := newFakeStore()
	w, buf := newTestWriter(store, nil)
	buf.Append(order(1, 100))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.Flush(ctx, true); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if store.ctxErrs[0] != nil {
		t.Errorf("store saw ctx.Err() = %v, want nil", store.ctxErrs[0])
	}
}

func TestBatchWriter_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	store := newFakeStore()
	buf := buffer.New[model.Order](0)
	w := New(DefaultConfig(string(model.KindOrder)), buf, orderKey, store, nil, m, nil)

	buf.Append(order(1, 100))
	buf.Append(order(1, 110))
	buf.Append(order(2, 200))
	if _, err := w.Flush(context.Background(), false); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	want := map[string]int64{
		"aodata_writer_flushes":      1,
		"aodata_writer_rows_written": 2,
		"aodata_writer_duplicates":   1,
	}
	for name, v := range want {
		if got := sumValue(rm, name); got != v {
			t.Errorf("%s = %d, want %d", name, got, v)
		}
	}
}

func sumValue(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestNewMetrics_NilMeter(t *testing.T) {
	m, err := NewMetrics(nil)
	if err != nil {
		t.Fatalf("NewMetrics(nil) error = %v", err)
	}
	m.record(context.Background(), "x", FlushResult{Drained: 1, Unique: 1}, false)

	var nilMetrics *Metrics
	nilMetrics.record(context.Background(), "x", FlushResult{}, true)
}

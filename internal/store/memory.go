package store

import (
	"bytes"
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/marketboard/internal/core"
)

// Memory is an in-process Repository. Contents are lost on restart.
type Memory struct {
	mu      sync.RWMutex
	records []core.StoredRecord
	nextID  int64

	// Now stamps upload dates; defaults to time.Now.
	Now func() time.Time
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{nextID: 1, Now: time.Now}
}

func (m *Memory) Create(_ context.Context, fileName string, report []byte) (core.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := core.StoredRecord{
		ID:         m.nextID,
		FileName:   fileName,
		UploadDate: m.Now().UTC(),
		Report:     bytes.Clone(report),
	}
	m.nextID++
	m.records = append(m.records, rec)
	return clone(rec), nil
}

func (m *Memory) Latest(_ context.Context) (core.StoredRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.records) == 0 {
		return core.StoredRecord{}, core.ErrNotFound
	}
	return clone(slices.MaxFunc(m.records, compareRecords)), nil
}

func (m *Memory) List(_ context.Context) ([]core.StoredRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.StoredRecord, len(m.records))
	for i, rec := range m.records {
		out[i] = clone(rec)
	}
	slices.SortFunc(out, func(a, b core.StoredRecord) int { return compareRecords(b, a) })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.IndexFunc(m.records, func(r core.StoredRecord) bool { return r.ID == id })
	if i < 0 {
		return core.ErrNotFound
	}
	m.records = slices.Delete(m.records, i, i+1)
	return nil
}

// compareRecords orders by upload date, then id, matching the Postgres
// ORDER BY.
func compareRecords(a, b core.StoredRecord) int {
	if c := a.UploadDate.Compare(b.UploadDate); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func clone(rec core.StoredRecord) core.StoredRecord {
	rec.Report = bytes.Clone(rec.Report)
	return rec
}

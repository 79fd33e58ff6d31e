// Package store persists report records for the store endpoints.
//
// Records are append-only byte blobs with an id, an optional file name and
// an upload time. Postgres is the production backend; Memory serves tests
// and single-process demos.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/marketboard/internal/core"
	"github.com/JonMunkholm/marketboard/internal/metrics"
)

// Repository stores and retrieves report records. Latest and Delete return
// core.ErrNotFound when there is nothing to act on.
type Repository interface {
	Create(ctx context.Context, fileName string, report []byte) (core.StoredRecord, error)
	Latest(ctx context.Context) (core.StoredRecord, error)
	List(ctx context.Context) ([]core.StoredRecord, error)
	Delete(ctx context.Context, id int64) error
}

// Pinger is implemented by repositories backed by a remote database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Instrument wraps repo so that every call is counted and timed.
func Instrument(repo Repository, m *metrics.Metrics) Repository {
	if m == nil {
		return repo
	}
	return &instrumented{next: repo, m: m}
}

type instrumented struct {
	next Repository
	m    *metrics.Metrics
}

func (r *instrumented) Create(ctx context.Context, fileName string, report []byte) (core.StoredRecord, error) {
	start := time.Now()
	rec, err := r.next.Create(ctx, fileName, report)
	r.m.ObserveStoreOp("create", start, err)
	return rec, err
}

func (r *instrumented) Latest(ctx context.Context) (core.StoredRecord, error) {
	start := time.Now()
	rec, err := r.next.Latest(ctx)
	r.m.ObserveStoreOp("latest", start, ignoreNotFound(err))
	return rec, err
}

func (r *instrumented) List(ctx context.Context) ([]core.StoredRecord, error) {
	start := time.Now()
	recs, err := r.next.List(ctx)
	r.m.ObserveStoreOp("list", start, err)
	return recs, err
}

func (r *instrumented) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	err := r.next.Delete(ctx, id)
	r.m.ObserveStoreOp("delete", start, ignoreNotFound(err))
	return err
}

// Ping forwards to the wrapped repository when it supports it.
func (r *instrumented) Ping(ctx context.Context) error {
	if p, ok := r.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// An empty store is a normal answer, not a failed operation.
func ignoreNotFound(err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	return err
}

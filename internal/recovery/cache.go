/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package recovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ValueSource returns the distinct non-null values of a column as text.
// *database.DB implements it.
type ValueSource interface {
	DistinctValues(ctx context.Context, tableName string, columnName string) ([]string, error)
}

// ValueSourceFunc adapts a function to ValueSource.
type ValueSourceFunc func(ctx context.Context, tableName string, columnName string) ([]string, error)

func (f ValueSourceFunc) DistinctValues(ctx context.Context, tableName string, columnName string) ([]string, error) {
	return f(ctx, tableName, columnName)
}

// LookupStatus distinguishes "no known values" from "store unreachable".
type LookupStatus int

const (
	Found LookupStatus = iota
	Empty
	FetchFailed
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case Empty:
		return "empty"
	case FetchFailed:
		return "fetch_failed"
	default:
		return "unknown"
	}
}

// Lookup is the outcome of resolving one column's value universe.
// Err is an *ErrFetchFailed when Status is FetchFailed.
type Lookup struct {
	Status LookupStatus
	Values []string
	Err    error
}

// warmConcurrency bounds the number of parallel fetches issued by Warm.
const warmConcurrency = 4

// DefaultFetchTimeout bounds one distinct-values query.
const DefaultFetchTimeout = 30 * time.Second

type cacheEntry struct {
	values    []string
	fetchedAt time.Time
}

// ValueCache memoizes value universes per column. Successful fetches are
// stored, including empty ones. Failed fetches are not. Safe for concurrent
// use; concurrent misses on one column share a single fetch.
type ValueCache struct {
	source       ValueSource
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu      sync.RWMutex
	entries map[ColumnRef]cacheEntry
	group   singleflight.Group
}

type CacheOption func(*ValueCache)

// WithTTL expires entries older than ttl. Zero keeps entries until invalidated.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *ValueCache) { c.ttl = ttl }
}

// WithFetchTimeout bounds a single fetch. Zero or less removes the bound.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *ValueCache) { c.fetchTimeout = d }
}

func WithLogger(logger *zap.Logger) CacheOption {
	return func(c *ValueCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) CacheOption {
	return func(c *ValueCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewValueCache(source ValueSource, opts ...CacheOption) *ValueCache {
	c := &ValueCache{
		source:       source,
		fetchTimeout: DefaultFetchTimeout,
		logger:       zap.NewNop(),
		now:          time.Now,
		entries:      make(map[ColumnRef]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Values returns the known values of table.column. A failed fetch is logged
// and yields an empty universe. The returned slice is shared and must not be
// modified.
func (c *ValueCache) Values(ctx context.Context, table, column string) []string {
	return c.Lookup(ctx, ColumnRef{Table: table, Column: column}).Values
}

// Lookup resolves the universe of ref, fetching it on the first call.
// Concurrent callers share one fetch. The fetch is detached from any single
// caller's cancellation and bounded by the fetch timeout instead; a caller
// whose ctx ends first gets FetchFailed while the fetch carries on for the rest.
func (c *ValueCache) Lookup(ctx context.Context, ref ColumnRef) Lookup {
	if values, ok := c.cached(ref); ok {
		return outcome(values)
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(ref.Table+"\x00"+ref.Column, func() (interface{}, error) {
		return c.fetch(fetchCtx, ref)
	})

	var (
		values []string
		err    error
		shared bool
	)
	select {
	case res := <-ch:
		err, shared = res.Err, res.Shared
		if err == nil {
			values = res.Val.([]string)
		}
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		c.logger.Warn("failed to fetch column values",
			zap.String("column", ref.Key()),
			zap.Bool("shared", shared),
			zap.Error(err))
		return Lookup{Status: FetchFailed, Err: &ErrFetchFailed{Ref: ref, Err: err}}
	}
	return outcome(values)
}

func (c *ValueCache) fetch(ctx context.Context, ref ColumnRef) ([]string, error) {
	if values, ok := c.cached(ref); ok {
		return values, nil
	}
	if c.source == nil {
		return nil, errors.New("no value source configured")
	}
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	values, err := c.source.DistinctValues(ctx, ref.Table, ref.Column)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []string{}
	}

	c.mu.Lock()
	c.entries[ref] = cacheEntry{values: values, fetchedAt: c.now()}
	c.mu.Unlock()

	c.logger.Debug("cached column values", zap.String("column", ref.Key()), zap.Int("count", len(values)))
	return values, nil
}

func (c *ValueCache) cached(ref ColumnRef) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[ref]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(entry.fetchedAt) >= c.ttl {
		return nil, false
	}
	return entry.values, true
}

func outcome(values []string) Lookup {
	if len(values) == 0 {
		return Lookup{Status: Empty, Values: values}
	}
	return Lookup{Status: Found, Values: values}
}

// Invalidate drops the entry for ref.
func (c *ValueCache) Invalidate(ref ColumnRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ref)
}

// Clear drops every entry.
func (c *ValueCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[ColumnRef]cacheEntry)
}

// Len returns the number of stored entries, expired ones included.
func (c *ValueCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Warm fetches the given columns concurrently. Every column is attempted; the
// returned error joins the failures.
func (c *ValueCache) Warm(ctx context.Context, refs []ColumnRef) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(warmConcurrency)

	for _, ref := range refs {
		g.Go(func() error {
			if lookup := c.Lookup(ctx, ref); lookup.Status == FetchFailed {
				mu.Lock()
				errs = append(errs, lookup.Err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

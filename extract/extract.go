// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/penny-vault/finelt/checkpoint"
	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/provider"
)

var (
	ErrUnknownKind    = errors.New("unknown extraction kind")
	ErrNoIdentifiers  = errors.New("no identifiers requested")
	ErrMissingRange   = errors.New("range extraction requires a start and end date")
	ErrInvalidRange   = errors.New("start date is after end date")
	ErrMissingStore   = errors.New("checkpoint store is required")
	ErrCheckpointSave = errors.New("could not persist checkpoint")
)

// Kind selects the extraction strategy
type Kind int

const (
	KindSingle Kind = iota
	KindBatch
	KindRange
)

func (kind Kind) String() string {
	switch kind {
	case KindSingle:
		return "single"
	case KindBatch:
		return "batch"
	case KindRange:
		return "range"
	default:
		return fmt.Sprintf("kind(%d)", int(kind))
	}
}

func ParseKind(name string) (Kind, error) {
	for _, kind := range []Kind{KindSingle, KindBatch, KindRange} {
		if kind.String() == name {
			return kind, nil
		}
	}

	return 0, fmt.Errorf("%w: %s", ErrUnknownKind, name)
}

// Request describes the identifiers (and for range extraction the dates)
// to extract
type Request struct {
	IDs   []string
	Start time.Time
	End   time.Time

	// Table overrides the provider's default destination table
	Table string
}

// Failure is an identifier whose extraction did not complete
type Failure struct {
	ID  string
	Err error
}

func (failure *Failure) Error() string {
	return fmt.Sprintf("%s: %s", failure.ID, failure.Err)
}

func (failure *Failure) Unwrap() error {
	return failure.Err
}

// Result is the partial-success outcome of an extraction
type Result struct {
	RunID string

	// Table holds every extracted row in insertion order
	Table *data.Table

	// ByID holds the rows of each identifier that produced data
	ByID map[string]*data.Table

	// NoData lists identifiers the provider reported as unknown
	NoData []string

	Failed []*Failure

	// Skipped lists identifiers completed by an earlier run
	Skipped []string

	Checkpoint *checkpoint.Checkpoint
}

// Complete reports if every identifier reached a terminal state
func (result *Result) Complete() bool {
	return len(result.Failed) == 0
}

type Extractor interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}

type SleepFunc func(ctx context.Context, d time.Duration) error

type Option func(*options)

type options struct {
	batchSize  int
	pacing     time.Duration
	sleep      SleepFunc
	maxRetries uint64
	retryBase  time.Duration
}

// WithBatchSize sets the number of units of work between checkpoints
func WithBatchSize(n int) Option {
	return func(opts *options) {
		opts.batchSize = n
	}
}

// WithPacing sets the delay between batches
func WithPacing(d time.Duration) Option {
	return func(opts *options) {
		opts.pacing = d
	}
}

// WithSleep replaces the function used to wait between batches
func WithSleep(fn SleepFunc) Option {
	return func(opts *options) {
		opts.sleep = fn
	}
}

// WithRetry sets how often, and starting from which delay, transient
// provider failures are retried
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(opts *options) {
		opts.maxRetries = maxRetries
		opts.retryBase = base
	}
}

// New returns the extractor for kind. Batch and range extraction persist
// their progress in store.
func New(kind Kind, env *config.Env, client provider.Client, store checkpoint.Store, opts ...Option) (Extractor, error) {
	cfg := env.Config.Extract
	o := &options{
		batchSize:  cfg.BatchSize,
		pacing:     cfg.Pacing,
		sleep:      sleepContext,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.batchSize <= 0 {
		o.batchSize = 1
	}

	if o.retryBase <= 0 {
		o.retryBase = time.Second
	}

	common := base{
		env:    env,
		client: client,
		store:  store,
		opts:   o,
	}

	switch kind {
	case KindSingle:
		return &singleExtractor{base: common}, nil
	case KindBatch:
		if store == nil {
			return nil, ErrMissingStore
		}
		return &batchExtractor{base: common}, nil
	case KindRange:
		if store == nil {
			return nil, ErrMissingStore
		}
		return &rangeExtractor{base: common}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
}

type base struct {
	env    *config.Env
	client provider.Client
	store  checkpoint.Store
	opts   *options
}

func (ex *base) table(kind Kind, req Request) (string, error) {
	name := req.Table
	if name == "" {
		name = ex.client.Table(kind.String())
	}

	if _, err := data.Lookup(name); err != nil {
		return "", err
	}

	return name, nil
}

// resume loads the checkpoint of runID or starts a new one
func (ex *base) resume(ctx context.Context, kind Kind, runID, table string, ids []string, req Request) (*checkpoint.Checkpoint, error) {
	cp, err := ex.store.Load(ctx, runID)
	switch {
	case err == nil:
		done, noData, failed := cp.Counts()
		ex.env.Logger.Info().Str("RunID", runID).Int("Done", done).Int("NoData", noData).Int("Failed", failed).
			Int("NumPending", cp.NumRows()).Msg("resuming from checkpoint")
		return cp, nil
	case errors.Is(err, checkpoint.ErrNotFound):
		cp := checkpoint.New(runID, kind.String(), table)
		cp.SetRequest(ids, req.Start, req.End)
		return cp, nil
	default:
		return nil, err
	}
}

// OpenRangeEnd returns the end date of an unfinished range run over ids in
// table that started at start. Re-running an open-ended request with this end
// date resumes the run instead of starting a new one.
func OpenRangeEnd(ctx context.Context, store checkpoint.Store, table string, ids []string, start time.Time) (time.Time, bool, error) {
	checkpoints, err := store.List(ctx)
	if err != nil {
		return time.Time{}, false, err
	}

	ids = dedupe(ids)
	for idx := len(checkpoints) - 1; idx >= 0; idx-- {
		cp := checkpoints[idx]
		if !cp.End.IsZero() && cp.Matches(KindRange.String(), table, ids, start) {
			return cp.End, true, nil
		}
	}

	return time.Time{}, false, nil
}

func (ex *base) save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if err := ex.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("%w: %w", ErrCheckpointSave, err)
	}

	return nil
}

func (ex *base) pace(ctx context.Context) error {
	if ex.opts.pacing <= 0 {
		return ctx.Err()
	}

	ex.env.Logger.Debug().Dur("Pacing", ex.opts.pacing).Msg("waiting before next batch")
	return ex.opts.sleep(ctx, ex.opts.pacing)
}

func (ex *base) backoff() retry.Backoff {
	return retry.WithMaxRetries(ex.opts.maxRetries,
		retry.WithJitterPercent(10, retry.NewExponential(ex.opts.retryBase)))
}

// withRetry calls fn until it succeeds, fails with a non-transient error, or
// the retry budget is spent
func withRetry[T any](ctx context.Context, ex *base, id string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	return retry.DoValue(ctx, ex.backoff(), func(ctx context.Context) (T, error) {
		attempt++
		val, err := fn(ctx)
		if provider.IsTransient(err) {
			ex.env.Logger.Warn().Err(err).Str("ID", id).Int("Attempt", attempt).Msg("transient provider failure")
			return val, retry.RetryableError(err)
		}

		return val, err
	})
}

// isFatal reports errors that end the run immediately
func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, provider.ErrUnauthorized) || ctx.Err() != nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}

	return out
}

func chunk(ids []string, size int) [][]string {
	batches := make([][]string, 0, len(ids)/size+1)
	for start := 0; start < len(ids); start += size {
		batches = append(batches, ids[start:min(start+size, len(ids))])
	}

	return batches
}

// buildResult assembles a result from the persisted checkpoint plus the
// errors observed in this run
func buildResult(runID, table string, ids []string, cp *checkpoint.Checkpoint, runErrs map[string]error, skipped []string) *Result {
	result := &Result{
		RunID:      runID,
		Table:      data.NewTable(table, cp.Rows()...),
		ByID:       make(map[string]*data.Table, len(cp.Pending)),
		NoData:     make([]string, 0),
		Failed:     make([]*Failure, 0),
		Skipped:    skipped,
		Checkpoint: cp,
	}

	for _, group := range cp.Pending {
		result.ByID[group.ID] = data.NewTable(table, group.Rows...)
	}

	for _, id := range ids {
		if cp.Processed[id] == checkpoint.StatusNoData {
			result.NoData = append(result.NoData, id)
		}

		if msg, ok := cp.Failed[id]; ok {
			err, ok := runErrs[id]
			if !ok {
				err = errors.New(msg)
			}
			result.Failed = append(result.Failed, &Failure{ID: id, Err: err})
		}
	}

	return result
}

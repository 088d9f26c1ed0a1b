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
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hako/durafmt"

	"github.com/penny-vault/finelt/checkpoint"
	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/extract"
	"github.com/penny-vault/finelt/healthcheck"
	"github.com/penny-vault/finelt/loader"
)

var (
	ErrIncomplete = errors.New("run finished with failures")
)

// Loader writes an extracted table to the store
type Loader interface {
	Load(ctx context.Context, tbl *data.Table) (*loader.Result, error)
}

// Runner extracts, loads and then settles the checkpoint of a run
type Runner struct {
	Extractor extract.Extractor
	Loader    Loader

	// Store holds checkpoints of batch and range runs; nil for single
	// extraction
	Store  checkpoint.Store
	Pinger *healthcheck.Pinger
	Env    *config.Env
}

// Run executes a request end to end. Once everything is loaded the
// checkpoint is deleted; otherwise it is reduced to the identifiers and rows
// that still need work so the next identical request retries only those.
func (runner *Runner) Run(ctx context.Context, req extract.Request) (*Summary, error) {
	logger := runner.Env.Logger
	startTime := time.Now()

	if err := runner.Pinger.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("healthcheck start ping failed")
	}

	summary, err := runner.run(ctx, req)
	if err != nil {
		runner.fail(ctx, err.Error())
		return nil, err
	}

	summary.Duration = time.Since(startTime)

	logger.Info().Str("RunID", summary.RunID).Str("Table", summary.Table).Int("Extracted", summary.Extracted).
		Int("Loaded", summary.Loaded).Int("Failed", len(summary.Failed)).Int("RowErrors", len(summary.RowErrors)).
		Str("RunTime", durafmt.Parse(summary.Duration).LimitFirstN(2).String()).Msg("run finished")

	if !summary.Complete() {
		runner.fail(ctx, summary.String())
		return summary, fmt.Errorf("%w: %d identifiers and %d rows failed", ErrIncomplete, len(summary.Failed), len(summary.RowErrors))
	}

	if err := runner.Pinger.Success(ctx, summary.String()); err != nil {
		logger.Warn().Err(err).Msg("healthcheck success ping failed")
	}

	return summary, nil
}

func (runner *Runner) run(ctx context.Context, req extract.Request) (*Summary, error) {
	result, err := runner.Extractor.Extract(ctx, req)
	if err != nil {
		return nil, err
	}

	spec, err := data.Lookup(result.Table.Name)
	if err != nil {
		return nil, err
	}

	rows := result.Table.Rows
	if spec.MergeRows {
		if rows, err = spec.MergeByKey(rows); err != nil {
			return nil, err
		}
	}

	summary := &Summary{
		RunID:     result.RunID,
		Table:     spec.Name,
		NumIDs:    len(req.IDs),
		Extracted: len(rows),
		NoData:    result.NoData,
		Skipped:   len(result.Skipped),
		Failed:    result.Failed,
		RowErrors: make([]*loader.RowError, 0),
	}

	loaded := &loader.Result{Table: spec.Name}
	if len(rows) > 0 {
		if loaded, err = runner.Loader.Load(ctx, data.NewTable(spec.Name, rows...)); err != nil {
			// the checkpoint still holds every pending row
			return nil, err
		}
	}

	summary.Loaded = loaded.Loaded
	summary.RowErrors = loaded.Failed

	if err := runner.settle(ctx, result, loaded); err != nil {
		return nil, err
	}

	return summary, nil
}

// settle deletes the checkpoint of a fully loaded run or keeps only the work
// that is still outstanding
func (runner *Runner) settle(ctx context.Context, result *extract.Result, loaded *loader.Result) error {
	if runner.Store == nil || result.Checkpoint == nil {
		return nil
	}

	if result.Complete() && len(loaded.Failed) == 0 {
		runner.Env.Logger.Debug().Str("RunID", result.RunID).Msg("removing checkpoint of completed run")
		return runner.Store.Delete(ctx, result.RunID)
	}

	cp := result.Checkpoint.Clone()
	cp.Pending = make([]*checkpoint.Pending, 0)

	failedRows := loaded.FailedRows()
	for idx, rowErr := range loaded.Failed {
		cp.AddRows(rowErr.Key, failedRows[idx])
	}

	runner.Env.Logger.Info().Str("RunID", result.RunID).Int("NumFailedIDs", len(cp.Failed)).
		Int("NumPending", cp.NumRows()).Msg("keeping checkpoint for retry")

	return runner.Store.Save(ctx, cp)
}

func (runner *Runner) fail(ctx context.Context, msg string) {
	if err := runner.Pinger.Fail(ctx, msg); err != nil {
		runner.Env.Logger.Warn().Err(err).Msg("healthcheck fail ping failed")
	}
}

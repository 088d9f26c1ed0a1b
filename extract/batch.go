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
	"time"

	"github.com/penny-vault/finelt/checkpoint"
	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/provider"
)

// batchExtractor processes identifiers in fixed-size batches and persists a
// checkpoint after every batch
type batchExtractor struct {
	base
}

func (ex *batchExtractor) Extract(ctx context.Context, req Request) (*Result, error) {
	ids := dedupe(req.IDs)
	if len(ids) == 0 {
		return nil, ErrNoIdentifiers
	}

	table, err := ex.table(KindBatch, req)
	if err != nil {
		return nil, err
	}

	runID := checkpoint.RunID(KindBatch.String(), table, ids, time.Time{}, time.Time{})
	cp, err := ex.resume(ctx, KindBatch, runID, table, ids, req)
	if err != nil {
		return nil, err
	}

	skipped := make([]string, 0)
	todo := make([]string, 0, len(ids))
	for _, id := range ids {
		if cp.IsProcessed(id) {
			skipped = append(skipped, id)
			continue
		}
		todo = append(todo, id)
	}

	runErrs := make(map[string]error)
	batches := chunk(todo, ex.opts.batchSize)

	for idx, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next := cp.Clone()
		outcomes := ex.client.FetchBatch(ctx, batch)

		for _, outcome := range outcomes {
			row, err := outcome.Row, outcome.Err
			if provider.IsTransient(err) {
				row, err = withRetry(ctx, &ex.base, outcome.ID, func(ctx context.Context) (data.Row, error) {
					return ex.client.FetchSingle(ctx, outcome.ID)
				})
			}

			switch {
			case err == nil:
				next.AddRows(outcome.ID, row)
				next.MarkDone(outcome.ID)
			case isFatal(ctx, err):
				// the in-flight batch is discarded
				return nil, err
			case errors.Is(err, provider.ErrNotFound):
				next.MarkNoData(outcome.ID)
			default:
				ex.env.Logger.Error().Err(err).Str("ID", outcome.ID).Msg("extraction failed")
				next.MarkFailed(outcome.ID, err)
				runErrs[outcome.ID] = err
			}
		}

		if idx == len(batches)-1 {
			next.RangeComplete = true
		}

		if err := ex.save(ctx, next); err != nil {
			return nil, err
		}
		cp = next

		done, noData, failed := cp.Counts()
		ex.env.Logger.Info().Str("RunID", runID).Int("Batch", idx+1).Int("NumBatches", len(batches)).
			Int("Done", done).Int("NoData", noData).Int("Failed", failed).Msg("batch complete")

		if idx < len(batches)-1 {
			if err := ex.pace(ctx); err != nil {
				return nil, err
			}
		}
	}

	if len(batches) == 0 && !cp.RangeComplete {
		cp.RangeComplete = true
		if err := ex.save(ctx, cp); err != nil {
			return nil, err
		}
	}

	return buildResult(runID, table, ids, cp, runErrs, skipped), nil
}

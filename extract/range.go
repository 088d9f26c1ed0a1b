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

	"golang.org/x/time/rate"

	"github.com/penny-vault/finelt/checkpoint"
	"github.com/penny-vault/finelt/provider"
)

// rangeExtractor pages through a date range for each identifier. A unit of
// work is one page; the checkpoint is persisted after every batch of pages
// and keeps the cursor of identifiers that are part way through.
type rangeExtractor struct {
	base
}

func (ex *rangeExtractor) Extract(ctx context.Context, req Request) (*Result, error) {
	ids := dedupe(req.IDs)
	if len(ids) == 0 {
		return nil, ErrNoIdentifiers
	}

	if req.Start.IsZero() || req.End.IsZero() {
		return nil, ErrMissingRange
	}

	if req.Start.After(req.End) {
		return nil, ErrInvalidRange
	}

	table, err := ex.table(KindRange, req)
	if err != nil {
		return nil, err
	}

	runID := checkpoint.RunID(KindRange.String(), table, ids, req.Start, req.End)
	cp, err := ex.resume(ctx, KindRange, runID, table, ids, req)
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
	progress := rate.Sometimes{Interval: 10 * time.Second}
	numPages := 0
	next := cp.Clone()

	for pos := 0; pos < len(todo); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id := todo[pos]
		cursor := next.Cursors[id]

		page, err := withRetry(ctx, &ex.base, id, func(ctx context.Context) (*provider.Page, error) {
			return ex.client.FetchRange(ctx, id, req.Start, req.End, cursor)
		})
		numPages++

		switch {
		case err == nil:
			next.AddRows(id, page.Rows...)
			delete(next.Failed, id)
			if page.Next == "" {
				next.MarkDone(id)
				pos++
			} else {
				next.Cursors[id] = page.Next
			}
		case isFatal(ctx, err):
			// pages fetched since the last checkpoint are discarded
			return nil, err
		case errors.Is(err, provider.ErrNotFound) && cursor == "":
			next.MarkNoData(id)
			pos++
		default:
			// the cursor stays in place so a later run resumes from this page
			ex.env.Logger.Error().Err(err).Str("ID", id).Str("Cursor", cursor).Msg("page extraction failed")
			next.MarkFailed(id, err)
			runErrs[id] = err
			pos++
		}

		progress.Do(func() {
			ex.env.Logger.Info().Str("RunID", runID).Str("ID", id).Int("NumPages", numPages).
				Int("NumRows", next.NumRows()).Msg("range extraction progress")
		})

		if numPages%ex.opts.batchSize != 0 && pos < len(todo) {
			continue
		}

		if pos == len(todo) {
			next.RangeComplete = true
		}

		if err := ex.save(ctx, next); err != nil {
			return nil, err
		}
		cp = next
		next = cp.Clone()

		if pos < len(todo) {
			if err := ex.pace(ctx); err != nil {
				return nil, err
			}
		}
	}

	if len(todo) == 0 && !cp.RangeComplete {
		cp.RangeComplete = true
		if err := ex.save(ctx, cp); err != nil {
			return nil, err
		}
	}

	ex.env.Logger.Info().Str("RunID", runID).Int("NumPages", numPages).Int("NumRows", cp.NumRows()).Msg("range extraction finished")
	return buildResult(runID, table, ids, cp, runErrs, skipped), nil
}

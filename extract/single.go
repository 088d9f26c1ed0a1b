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

// singleExtractor issues one request per identifier and keeps no checkpoint
type singleExtractor struct {
	base
}

func (ex *singleExtractor) Extract(ctx context.Context, req Request) (*Result, error) {
	ids := dedupe(req.IDs)
	if len(ids) == 0 {
		return nil, ErrNoIdentifiers
	}

	table, err := ex.table(KindSingle, req)
	if err != nil {
		return nil, err
	}

	runID := checkpoint.RunID(KindSingle.String(), table, ids, time.Time{}, time.Time{})
	result := &Result{
		RunID:   runID,
		Table:   data.NewTable(table),
		ByID:    make(map[string]*data.Table, len(ids)),
		NoData:  make([]string, 0),
		Failed:  make([]*Failure, 0),
		Skipped: make([]string, 0),
	}

	for _, id := range ids {
		row, err := withRetry(ctx, &ex.base, id, func(ctx context.Context) (data.Row, error) {
			return ex.client.FetchSingle(ctx, id)
		})

		switch {
		case err == nil:
			result.Table.Append(row)
			result.ByID[id] = data.NewTable(table, row)
		case isFatal(ctx, err):
			return nil, err
		case errors.Is(err, provider.ErrNotFound):
			ex.env.Logger.Info().Str("ID", id).Msg("provider has no data")
			result.NoData = append(result.NoData, id)
		default:
			ex.env.Logger.Error().Err(err).Str("ID", id).Msg("extraction failed")
			result.Failed = append(result.Failed, &Failure{ID: id, Err: err})
		}
	}

	return result, nil
}

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
package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Querier is the subset of a pgx connection used by DBStore
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DBStore keeps checkpoints in the pipeline_checkpoints table created by the
// database migrations
type DBStore struct {
	db Querier
}

func NewDBStore(db Querier) *DBStore {
	return &DBStore{db: db}
}

func (store *DBStore) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	var body string
	err := store.db.QueryRow(ctx, `SELECT body::text FROM pipeline_checkpoints WHERE run_id = $1`, runID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	if err != nil {
		return nil, err
	}

	return Decode([]byte(body))
}

func (store *DBStore) Save(ctx context.Context, cp *Checkpoint) error {
	saved := cp.Clone()
	saved.touch()

	buf, err := saved.Encode()
	if err != nil {
		return err
	}

	sql := `INSERT INTO pipeline_checkpoints (
		"run_id",
		"kind",
		"table_name",
		"body",
		"created_at",
		"updated_at"
	) VALUES (
		$1, $2, $3, $4::jsonb, $5, $6
	) ON CONFLICT ON CONSTRAINT pipeline_checkpoints_pkey DO UPDATE SET
		body = EXCLUDED.body,
		updated_at = EXCLUDED.updated_at`

	if _, err := store.db.Exec(ctx, sql, saved.RunID, saved.Kind, saved.Table, string(buf), saved.CreatedAt, saved.UpdatedAt); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("RunID", saved.RunID).Msg("save checkpoint to DB failed")
		return err
	}

	return nil
}

func (store *DBStore) Delete(ctx context.Context, runID string) error {
	_, err := store.db.Exec(ctx, `DELETE FROM pipeline_checkpoints WHERE run_id = $1`, runID)
	return err
}

func (store *DBStore) List(ctx context.Context) ([]*Checkpoint, error) {
	var bodies []string
	if err := pgxscan.Select(ctx, store.db, &bodies, `SELECT body::text FROM pipeline_checkpoints ORDER BY created_at`); err != nil {
		return nil, err
	}

	out := make([]*Checkpoint, 0, len(bodies))
	for _, body := range bodies {
		cp, err := Decode([]byte(body))
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("skipping unreadable checkpoint row")
			continue
		}
		out = append(out, cp)
	}

	return out, nil
}

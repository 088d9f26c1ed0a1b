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
package schema

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/library"
)

var (
	ErrSchemaConflict = errors.New("existing table conflicts with declared schema")
)

type existingColumn struct {
	ColumnName string `db:"column_name"`
	DataType   string `db:"data_type"`
}

// Manager creates destination tables and evolves them additively. Existing
// columns are never dropped or altered.
type Manager struct {
	Logger zerolog.Logger
}

func New(logger zerolog.Logger) *Manager {
	return &Manager{
		Logger: logger,
	}
}

// EnsureSchema makes sure table exists with every declared column, its
// primary key and its secondary indexes. All changes are made in a single
// transaction.
func (manager *Manager) EnsureSchema(ctx context.Context, db library.DB, table string) (err error) {
	spec, err := data.Lookup(table)
	if err != nil {
		return err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err == nil {
			return
		}

		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			manager.Logger.Error().Err(rbErr).Str("Table", table).Msg("error rolling back schema tx")
		}
	}()

	existing := make([]*existingColumn, 0)
	if err = pgxscan.Select(ctx, tx, &existing, `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`, table); err != nil {
		return err
	}

	if len(existing) == 0 {
		manager.Logger.Info().Str("Table", table).Msg("creating table")
		if _, err = tx.Exec(ctx, createTableSQL(spec)); err != nil {
			return err
		}
	} else if err = manager.evolve(ctx, tx, spec, existing); err != nil {
		return err
	}

	for _, cols := range spec.Indexes {
		if _, err = tx.Exec(ctx, createIndexSQL(spec.Name, cols)); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// EnsureAll ensures the schema of every declared table
func (manager *Manager) EnsureAll(ctx context.Context, db library.DB) error {
	for _, table := range data.TableNames() {
		if err := manager.EnsureSchema(ctx, db, table); err != nil {
			return fmt.Errorf("%s: %w", table, err)
		}
	}

	return nil
}

// evolve compares an existing table with its declaration, rejects
// incompatible key changes and adds any missing value columns
func (manager *Manager) evolve(ctx context.Context, tx pgx.Tx, spec *data.TableSpec, existing []*existingColumn) error {
	types := make(map[string]string, len(existing))
	for _, col := range existing {
		types[col.ColumnName] = col.DataType
	}

	for _, name := range spec.Key {
		col, _ := spec.Column(name)
		dataType, ok := types[name]
		if !ok {
			return fmt.Errorf("%w: %s is missing key column %s", ErrSchemaConflict, spec.Name, name)
		}

		if dataType != col.Type.InformationSchemaName() {
			return fmt.Errorf("%w: %s.%s is %s, expected %s", ErrSchemaConflict, spec.Name, name, dataType, col.Type.InformationSchemaName())
		}
	}

	pkey := make([]string, 0, len(spec.Key))
	if err := pgxscan.Select(ctx, tx, &pkey, `SELECT kcu.column_name FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = current_schema() AND tc.table_name = $1
ORDER BY kcu.ordinal_position`, spec.Name); err != nil {
		return err
	}

	if !slices.Equal(pkey, spec.Key) {
		return fmt.Errorf("%w: %s primary key is (%s), expected (%s)", ErrSchemaConflict, spec.Name,
			strings.Join(pkey, ", "), strings.Join(spec.Key, ", "))
	}

	for _, col := range spec.ValueColumns() {
		if _, ok := types[col.Name]; ok {
			continue
		}

		manager.Logger.Info().Str("Table", spec.Name).Str("Column", col.Name).Msg("adding column")
		if _, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", spec.Name, col.Name, col.Type)); err != nil {
			return err
		}
	}

	return nil
}

func createTableSQL(spec *data.TableSpec) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n", spec.Name))

	for _, col := range spec.Columns {
		builder.WriteString(fmt.Sprintf("  %s %s", col.Name, col.Type))
		if spec.IsKey(col.Name) {
			builder.WriteString(" NOT NULL")
		}
		builder.WriteString(",\n")
	}

	builder.WriteString(fmt.Sprintf("  CONSTRAINT %s_pkey PRIMARY KEY (%s)\n)", spec.Name, strings.Join(spec.Key, ", ")))
	return builder.String()
}

func createIndexSQL(table string, cols []string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s)", table, strings.Join(cols, "_"), table, strings.Join(cols, ", "))
}

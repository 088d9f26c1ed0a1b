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
package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/library"
	"github.com/penny-vault/finelt/schema"
)

// RowError is a row that could not be written
type RowError struct {
	Index int
	Key   string
	Row   data.Row
	Err   error
}

func (rowErr *RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %s", rowErr.Index, rowErr.Key, rowErr.Err)
}

func (rowErr *RowError) Unwrap() error {
	return rowErr.Err
}

// Result reports the outcome of loading a table. Rows are written
// independently so a failed row does not affect the others.
type Result struct {
	Table  string
	Loaded int
	Failed []*RowError
}

// FailedRows returns the rows that were not written, in their original order
func (result *Result) FailedRows() []data.Row {
	rows := make([]data.Row, len(result.Failed))
	for idx, rowErr := range result.Failed {
		rows[idx] = rowErr.Row
	}

	return rows
}

type Loader struct {
	db     library.Acquirer
	schema *schema.Manager
	logger zerolog.Logger
}

func New(env *config.Env, db library.Acquirer) *Loader {
	return &Loader{
		db:     db,
		schema: schema.New(env.Logger),
		logger: env.Logger,
	}
}

// Load upserts every row of tbl. A row whose key already exists is replaced
// entirely: columns missing from the row are written as NULL. Tables assembled
// from merged rows are the exception; there a conflict only updates the
// columns the row carries, so loading one series never clears another.
func (loader *Loader) Load(ctx context.Context, tbl *data.Table) (*Result, error) {
	return loader.write(ctx, tbl, upsertSQL)
}

// Insert adds every row of tbl without conflict handling. Rows whose key
// already exists fail with library.ErrAlreadyExists.
func (loader *Loader) Insert(ctx context.Context, tbl *data.Table) (*Result, error) {
	return loader.write(ctx, tbl, insertSQL)
}

func (loader *Loader) write(ctx context.Context, tbl *data.Table, statement func(*data.TableSpec, data.Row) string) (*Result, error) {
	spec, err := data.Lookup(tbl.Name)
	if err != nil {
		return nil, err
	}

	conn, release, err := loader.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := loader.schema.EnsureSchema(ctx, conn, spec.Name); err != nil {
		return nil, err
	}

	result := &Result{
		Table:  spec.Name,
		Failed: make([]*RowError, 0),
	}

	for idx, row := range tbl.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key, args, err := bind(spec, row)
		if err == nil {
			_, err = conn.Exec(ctx, statement(spec, row), args...)
			if library.IsUniqueViolation(err) {
				err = fmt.Errorf("%w: %s %s", library.ErrAlreadyExists, spec.Name, key)
			}
		}

		if err != nil {
			loader.logger.Warn().Err(err).Str("Table", spec.Name).Str("Key", key).Int("Index", idx).Msg("could not save row")
			result.Failed = append(result.Failed, &RowError{Index: idx, Key: key, Row: row, Err: err})
			continue
		}

		result.Loaded++
	}

	loader.logger.Info().Str("Table", spec.Name).Int("NumRows", len(tbl.Rows)).Int("Loaded", result.Loaded).
		Int("Failed", len(result.Failed)).Msg("table loaded")

	return result, nil
}

// bind returns the natural key of row and its values in declared column
// order
func bind(spec *data.TableSpec, row data.Row) (string, []any, error) {
	key, err := spec.RowKey(row)
	if err != nil {
		return "", nil, err
	}

	for name := range row {
		if _, ok := spec.Column(name); !ok {
			return key, nil, fmt.Errorf("%w: %s.%s", data.ErrUnknownColumn, spec.Name, name)
		}
	}

	args := make([]any, len(spec.Columns))
	for idx, col := range spec.Columns {
		args[idx] = row[col.Name]
	}

	return key, args, nil
}

func insertSQL(spec *data.TableSpec, _ data.Row) string {
	cols := spec.ColumnNames()
	placeholders := make([]string, len(cols))
	for idx := range cols {
		placeholders[idx] = fmt.Sprintf("$%d", idx+1)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", spec.Name, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

func upsertSQL(spec *data.TableSpec, row data.Row) string {
	values := spec.ValueColumns()
	if spec.MergeRows {
		values = present(values, row)
	}

	if spec.InsertOnly || len(values) == 0 {
		return fmt.Sprintf("%s ON CONFLICT ON CONSTRAINT %s_pkey DO NOTHING", insertSQL(spec, row), spec.Name)
	}

	updates := make([]string, len(values))
	for idx, col := range values {
		updates[idx] = fmt.Sprintf("%[1]s = EXCLUDED.%[1]s", col.Name)
	}

	return fmt.Sprintf("%s ON CONFLICT ON CONSTRAINT %s_pkey DO UPDATE SET %s", insertSQL(spec, row), spec.Name, strings.Join(updates, ", "))
}

// present filters cols to those that appear in row; a column explicitly set to
// nil counts as present
func present(cols []data.Column, row data.Row) []data.Column {
	out := make([]data.Column, 0, len(cols))
	for _, col := range cols {
		if _, ok := row[col.Name]; ok {
			out = append(out, col)
		}
	}

	return out
}

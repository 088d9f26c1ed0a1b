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
package data

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Row is a single normalized record keyed by column name
type Row map[string]any

// Clone returns a shallow copy of the row
func (row Row) Clone() Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}

	return out
}

// Table is an ordered collection of rows destined for a single table
type Table struct {
	Name string
	Rows []Row
}

func NewTable(name string, rows ...Row) *Table {
	return &Table{
		Name: name,
		Rows: rows,
	}
}

func (tbl *Table) Append(rows ...Row) {
	tbl.Rows = append(tbl.Rows, rows...)
}

func (tbl *Table) Len() int {
	if tbl == nil {
		return 0
	}

	return len(tbl.Rows)
}

// DecodeRow coerces the values of raw into the go types of the declared
// columns. It accepts values produced by a JSON decoder (json.Number, date
// strings) so rows survive a round trip through a checkpoint.
func (spec *TableSpec) DecodeRow(raw map[string]any) (Row, error) {
	row := make(Row, len(raw))
	for name, val := range raw {
		col, ok := spec.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, spec.Name, name)
		}

		converted, err := convert(col.Type, val)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", spec.Name, name, err)
		}

		row[name] = converted
	}

	return row, nil
}

// MergeByKey combines rows that share a natural key into a single row holding
// the union of their columns. Order of first appearance is preserved; for a
// column present in several rows the last non-null value wins.
func (spec *TableSpec) MergeByKey(rows []Row) ([]Row, error) {
	merged := make([]Row, 0, len(rows))
	index := make(map[string]int, len(rows))

	for _, row := range rows {
		key, err := spec.RowKey(row)
		if err != nil {
			return nil, err
		}

		pos, ok := index[key]
		if !ok {
			index[key] = len(merged)
			merged = append(merged, row.Clone())
			continue
		}

		target := merged[pos]
		for name, val := range row {
			if _, exists := target[name]; !exists || val != nil {
				target[name] = val
			}
		}
	}

	return merged, nil
}

func convert(ct ColumnType, val any) (any, error) {
	if val == nil {
		return nil, nil
	}

	invalid := fmt.Errorf("%w: %T to %s", ErrInvalidValue, val, ct)

	switch ct {
	case Text:
		switch v := val.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		}

	case Integer, BigInt:
		switch v := val.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, invalid
			}
			return int64(v), nil
		case json.Number:
			if i, err := v.Int64(); err == nil {
				return i, nil
			}
			f, err := v.Float64()
			if err != nil || f != math.Trunc(f) {
				return nil, invalid
			}
			return int64(f), nil
		case string:
			i, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, invalid
			}
			return i, nil
		}

	case Double:
		switch v := val.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, invalid
			}
			return f, nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, invalid
			}
			return f, nil
		}

	case Boolean:
		switch v := val.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, invalid
			}
			return b, nil
		}

	case Date, Timestamp:
		switch v := val.(type) {
		case time.Time:
			return v, nil
		case string:
			if t, err := time.Parse(time.DateOnly, v); err == nil {
				return t, nil
			}
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, invalid
			}
			return t, nil
		}
	}

	return nil, invalid
}

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
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrUnknownColumn = errors.New("unknown column")
	ErrMissingKey    = errors.New("row is missing a natural key column")
	ErrInvalidValue  = errors.New("value cannot be converted to column type")
)

// ColumnType is the postgres type of a column as written in DDL
type ColumnType string

const (
	Text      ColumnType = "TEXT"
	Integer   ColumnType = "INTEGER"
	BigInt    ColumnType = "BIGINT"
	Double    ColumnType = "DOUBLE PRECISION"
	Boolean   ColumnType = "BOOLEAN"
	Date      ColumnType = "DATE"
	Timestamp ColumnType = "TIMESTAMP WITH TIME ZONE"
)

// InformationSchemaName returns the name postgres reports for the type in
// information_schema.columns.data_type
func (ct ColumnType) InformationSchemaName() string {
	return strings.ToLower(string(ct))
}

type Column struct {
	Name string
	Type ColumnType
}

// TableSpec declares a destination table: its columns, natural key and
// secondary indexes.
type TableSpec struct {
	Name    string
	Columns []Column
	Key     []string
	Indexes [][]string

	// MergeRows combines rows sharing a natural key before they are loaded
	MergeRows bool

	// InsertOnly tables are never updated on conflict
	InsertOnly bool
}

const (
	TickersKey         = "tickers"
	CompanyDetailsKey  = "company_details"
	PriceBarsKey       = "price_bars"
	TreasuryYieldsKey  = "treasury_yields"
	IndustryMappingKey = "sic_to_naics"
)

var DataTypes = map[string]*TableSpec{
	TickersKey: {
		Name: TickersKey,
		Columns: []Column{
			{Name: "ticker", Type: Text},
			{Name: "name", Type: Text},
			{Name: "market", Type: Text},
			{Name: "locale", Type: Text},
			{Name: "active", Type: Boolean},
			{Name: "source", Type: Text},
		},
		Key:        []string{"ticker"},
		Indexes:    [][]string{{"active"}},
		InsertOnly: true,
	},
	CompanyDetailsKey: {
		Name: CompanyDetailsKey,
		Columns: []Column{
			{Name: "ticker", Type: Text},
			{Name: "name", Type: Text},
			{Name: "market_cap", Type: Double},
			{Name: "active", Type: Boolean},
			{Name: "composite_figi", Type: Text},
			{Name: "base_currency", Type: Text},
			{Name: "list_date", Type: Date},
			{Name: "primary_exchange", Type: Text},
			{Name: "shares_outstanding", Type: BigInt},
			{Name: "total_employees", Type: BigInt},
			{Name: "sic_code", Type: Integer},
		},
		Key:     []string{"ticker"},
		Indexes: [][]string{{"active"}, {"sic_code"}},
	},
	PriceBarsKey: {
		Name: PriceBarsKey,
		Columns: []Column{
			{Name: "ticker", Type: Text},
			{Name: "event_date", Type: Date},
			{Name: "open", Type: Double},
			{Name: "high", Type: Double},
			{Name: "low", Type: Double},
			{Name: "close", Type: Double},
			{Name: "volume", Type: Double},
			{Name: "vwap", Type: Double},
			{Name: "transactions", Type: BigInt},
		},
		Key:     []string{"ticker", "event_date"},
		Indexes: [][]string{{"event_date"}},
	},
	TreasuryYieldsKey: {
		Name: TreasuryYieldsKey,
		Columns: []Column{
			{Name: "event_date", Type: Date},
			{Name: "dgs1mo", Type: Double},
			{Name: "dgs3mo", Type: Double},
			{Name: "dgs6mo", Type: Double},
			{Name: "dgs1", Type: Double},
			{Name: "dgs2", Type: Double},
			{Name: "dgs5", Type: Double},
			{Name: "dgs10", Type: Double},
			{Name: "dgs30", Type: Double},
		},
		Key:       []string{"event_date"},
		MergeRows: true,
	},
	IndustryMappingKey: {
		Name: IndustryMappingKey,
		Columns: []Column{
			{Name: "sic_code", Type: Integer},
			{Name: "sic_description", Type: Text},
			{Name: "naics_code", Type: Integer},
			{Name: "naics_description", Type: Text},
		},
		Key:        []string{"sic_code", "naics_code"},
		Indexes:    [][]string{{"naics_code"}},
		InsertOnly: true,
	},
}

// Lookup returns the declaration of the named table
func Lookup(name string) (*TableSpec, error) {
	spec, ok := DataTypes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}

	return spec, nil
}

// TableNames returns the names of all declared tables in a stable order
func TableNames() []string {
	names := make([]string, 0, len(DataTypes))
	for name := range DataTypes {
		names = append(names, name)
	}

	slices.Sort(names)
	return names
}

// Column returns the column with the given name
func (spec *TableSpec) Column(name string) (Column, bool) {
	for _, col := range spec.Columns {
		if col.Name == name {
			return col, true
		}
	}

	return Column{}, false
}

// IsKey reports if the column is part of the natural key
func (spec *TableSpec) IsKey(name string) bool {
	return slices.Contains(spec.Key, name)
}

// ValueColumns returns all columns that are not part of the natural key
func (spec *TableSpec) ValueColumns() []Column {
	cols := make([]Column, 0, len(spec.Columns))
	for _, col := range spec.Columns {
		if !spec.IsKey(col.Name) {
			cols = append(cols, col)
		}
	}

	return cols
}

// ColumnNames returns the declared column names in order
func (spec *TableSpec) ColumnNames() []string {
	names := make([]string, len(spec.Columns))
	for idx, col := range spec.Columns {
		names[idx] = col.Name
	}

	return names
}

// RowKey returns the natural key of row as a string. Every key column must be
// present and non-null.
func (spec *TableSpec) RowKey(row Row) (string, error) {
	parts := make([]string, len(spec.Key))
	for idx, name := range spec.Key {
		val, ok := row[name]
		if !ok || val == nil {
			return "", fmt.Errorf("%w: %s.%s", ErrMissingKey, spec.Name, name)
		}

		switch v := val.(type) {
		case time.Time:
			parts[idx] = v.Format(time.DateOnly)
		default:
			parts[idx] = fmt.Sprint(v)
		}
	}

	return strings.Join(parts, "|"), nil
}

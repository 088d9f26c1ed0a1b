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
package api

import (
	"context"
	"time"

	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/enrich"
	"github.com/penny-vault/finelt/library"
)

// Store is the read and registration surface served over HTTP
type Store interface {
	Company(ctx context.Context, ticker string) (*data.EnrichedCompany, error)
	Companies(ctx context.Context) ([]*data.EnrichedCompany, error)
	PriceHistory(ctx context.Context, ticker string, start, end time.Time) ([]*data.PriceBar, error)
	Yields(ctx context.Context, start, end time.Time, page, size int) ([]*data.TreasuryYield, error)
	YieldOn(ctx context.Context, date time.Time) (*data.TreasuryYield, error)
	Tickers(ctx context.Context, activeOnly bool) ([]*data.Ticker, error)
	RegisterTicker(ctx context.Context, ticker *data.Ticker) error
}

// LibraryStore serves the store from the database, acquiring a connection
// per call
type LibraryStore struct {
	DB library.Acquirer
}

func NewLibraryStore(db library.Acquirer) *LibraryStore {
	return &LibraryStore{DB: db}
}

// with runs fn on a freshly acquired connection
func with[T any](ctx context.Context, store *LibraryStore, fn func(db library.DB) (T, error)) (T, error) {
	var zero T
	conn, release, err := store.DB.Acquire(ctx)
	if err != nil {
		return zero, err
	}
	defer release()

	return fn(conn)
}

func (store *LibraryStore) Company(ctx context.Context, ticker string) (*data.EnrichedCompany, error) {
	return with(ctx, store, func(db library.DB) (*data.EnrichedCompany, error) {
		return enrich.Query(ctx, db, ticker)
	})
}

func (store *LibraryStore) Companies(ctx context.Context) ([]*data.EnrichedCompany, error) {
	return with(ctx, store, func(db library.DB) ([]*data.EnrichedCompany, error) {
		return enrich.QueryAll(ctx, db)
	})
}

func (store *LibraryStore) PriceHistory(ctx context.Context, ticker string, start, end time.Time) ([]*data.PriceBar, error) {
	return with(ctx, store, func(db library.DB) ([]*data.PriceBar, error) {
		return library.PriceHistory(ctx, db, ticker, start, end)
	})
}

func (store *LibraryStore) Yields(ctx context.Context, start, end time.Time, page, size int) ([]*data.TreasuryYield, error) {
	return with(ctx, store, func(db library.DB) ([]*data.TreasuryYield, error) {
		return library.Yields(ctx, db, start, end, page, size)
	})
}

func (store *LibraryStore) YieldOn(ctx context.Context, date time.Time) (*data.TreasuryYield, error) {
	return with(ctx, store, func(db library.DB) (*data.TreasuryYield, error) {
		return library.YieldOn(ctx, db, date)
	})
}

func (store *LibraryStore) Tickers(ctx context.Context, activeOnly bool) ([]*data.Ticker, error) {
	return with(ctx, store, func(db library.DB) ([]*data.Ticker, error) {
		return library.Tickers(ctx, db, activeOnly)
	})
}

func (store *LibraryStore) RegisterTicker(ctx context.Context, ticker *data.Ticker) error {
	_, err := with(ctx, store, func(db library.DB) (struct{}, error) {
		return struct{}{}, library.RegisterTicker(ctx, db, ticker)
	})
	return err
}

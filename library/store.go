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
package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/penny-vault/finelt/data"
)

const (
	companyColumns = `ticker, name, market_cap, active, composite_figi, base_currency, list_date,
primary_exchange, shares_outstanding, total_employees, sic_code`
	priceColumns  = "ticker, event_date, open, high, low, close, volume, vwap, transactions"
	yieldColumns  = "event_date, dgs1mo, dgs3mo, dgs6mo, dgs1, dgs2, dgs5, dgs10, dgs30"
	tickerColumns = "ticker, name, market, locale, active, source"
)

// Company returns the stored details of ticker
func Company(ctx context.Context, db DB, ticker string) (*data.CompanyDetails, error) {
	company := &data.CompanyDetails{}
	err := pgxscan.Get(ctx, db, company, fmt.Sprintf("SELECT %s FROM company_details WHERE ticker = $1", companyColumns), ticker)
	if pgxscan.NotFound(err) {
		return nil, fmt.Errorf("%w: company %s", ErrNotFound, ticker)
	}

	return company, err
}

// Companies returns the stored details of every company ordered by ticker
func Companies(ctx context.Context, db DB) ([]*data.CompanyDetails, error) {
	companies := make([]*data.CompanyDetails, 0)
	err := pgxscan.Select(ctx, db, &companies, fmt.Sprintf("SELECT %s FROM company_details ORDER BY ticker", companyColumns))
	return companies, err
}

// PriceHistory returns the daily bars of ticker between start and end
// (inclusive). A zero start or end leaves that side of the range open.
func PriceHistory(ctx context.Context, db DB, ticker string, start, end time.Time) ([]*data.PriceBar, error) {
	bars := make([]*data.PriceBar, 0)
	err := pgxscan.Select(ctx, db, &bars, fmt.Sprintf(`SELECT %s FROM price_bars
WHERE ticker = $1 AND ($2::date IS NULL OR event_date >= $2) AND ($3::date IS NULL OR event_date <= $3)
ORDER BY event_date`, priceColumns), ticker, nullDate(start), nullDate(end))
	return bars, err
}

// Yields returns one page of the yield curve history. Pages start at 1.
func Yields(ctx context.Context, db DB, start, end time.Time, page, size int) ([]*data.TreasuryYield, error) {
	if page < 1 {
		page = 1
	}

	yields := make([]*data.TreasuryYield, 0)
	err := pgxscan.Select(ctx, db, &yields, fmt.Sprintf(`SELECT %s FROM treasury_yields
WHERE ($1::date IS NULL OR event_date >= $1) AND ($2::date IS NULL OR event_date <= $2)
ORDER BY event_date LIMIT $3 OFFSET $4`, yieldColumns), nullDate(start), nullDate(end), size, (page-1)*size)
	return yields, err
}

// YieldOn returns the yield curve observed on date
func YieldOn(ctx context.Context, db DB, date time.Time) (*data.TreasuryYield, error) {
	yield := &data.TreasuryYield{}
	err := pgxscan.Get(ctx, db, yield, fmt.Sprintf("SELECT %s FROM treasury_yields WHERE event_date = $1", yieldColumns), date)
	if pgxscan.NotFound(err) {
		return nil, fmt.Errorf("%w: yields on %s", ErrNotFound, date.Format(time.DateOnly))
	}

	return yield, err
}

// Tickers returns the registered tickers ordered by symbol
func Tickers(ctx context.Context, db DB, activeOnly bool) ([]*data.Ticker, error) {
	sql := fmt.Sprintf("SELECT %s FROM tickers", tickerColumns)
	if activeOnly {
		sql += " WHERE active"
	}
	sql += " ORDER BY ticker"

	tickers := make([]*data.Ticker, 0)
	err := pgxscan.Select(ctx, db, &tickers, sql)
	return tickers, err
}

// ActiveTickers returns the symbols of all active registered tickers
func ActiveTickers(ctx context.Context, db DB) ([]string, error) {
	symbols := make([]string, 0)
	err := pgxscan.Select(ctx, db, &symbols, "SELECT ticker FROM tickers WHERE active ORDER BY ticker")
	return symbols, err
}

// RegisterTicker adds ticker to the tickers table. Registering a symbol twice
// returns ErrAlreadyExists.
func RegisterTicker(ctx context.Context, db DB, ticker *data.Ticker) error {
	ticker.Ticker = strings.ToUpper(ticker.Ticker)
	_, err := db.Exec(ctx, fmt.Sprintf(`INSERT INTO tickers (%s) VALUES ($1, $2, $3, $4, $5, $6)`, tickerColumns),
		ticker.Ticker, ticker.Name, ticker.Market, ticker.Locale, ticker.Active, ticker.Source)
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: ticker %s", ErrAlreadyExists, ticker.Ticker)
	}

	return err
}

// RowCount returns the number of rows stored in table
func RowCount(ctx context.Context, db DB, table string) (int64, error) {
	if _, err := data.Lookup(table); err != nil {
		return 0, err
	}

	var count int64
	err := db.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&count)
	return count, err
}

func nullDate(dt time.Time) any {
	if dt.IsZero() {
		return nil
	}

	return dt
}

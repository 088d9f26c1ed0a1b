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
package schema_test

import (
	"context"
	"os"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"

	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/schema"
)

const columnsQuery = "FROM information_schema.columns"
const pkeyQuery = "WHERE tc.constraint_type = 'PRIMARY KEY'"

func columnRows(cols ...string) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"column_name", "data_type"})
	for ii := 0; ii+1 < len(cols); ii += 2 {
		rows.AddRow(cols[ii], cols[ii+1])
	}
	return rows
}

var _ = Describe("Manager", func() {
	var (
		ctx     context.Context
		mock    pgxmock.PgxPoolIface
		manager *schema.Manager
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		mock, err = pgxmock.NewPool()
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(mock.Close)
		manager = schema.New(zerolog.Nop())
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("rejects undeclared tables", func() {
		Expect(manager.EnsureSchema(ctx, mock, "quotes")).To(MatchError(data.ErrUnknownTable))
	})

	It("creates an absent table with its primary key and indexes", func() {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).WithArgs(data.PriceBarsKey).WillReturnRows(columnRows())
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS price_bars (")+
			"(?s).*"+regexp.QuoteMeta("ticker TEXT NOT NULL")+
			"(?s).*"+regexp.QuoteMeta("vwap DOUBLE PRECISION,")+
			"(?s).*"+regexp.QuoteMeta("CONSTRAINT price_bars_pkey PRIMARY KEY (ticker, event_date)")).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS price_bars_event_date_idx ON price_bars (event_date)")).
			WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
		mock.ExpectCommit()

		Expect(manager.EnsureSchema(ctx, mock, data.PriceBarsKey)).To(Succeed())
	})

	It("adds missing value columns to an existing table", func() {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).WithArgs(data.TreasuryYieldsKey).
			WillReturnRows(columnRows("event_date", "date", "dgs1mo", "double precision", "dgs3mo", "double precision",
				"dgs6mo", "double precision", "dgs1", "double precision", "dgs2", "double precision",
				"dgs5", "double precision", "dgs10", "double precision"))
		mock.ExpectQuery(regexp.QuoteMeta(pkeyQuery)).WithArgs(data.TreasuryYieldsKey).
			WillReturnRows(pgxmock.NewRows([]string{"column_name"}).AddRow("event_date"))
		mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE treasury_yields ADD COLUMN IF NOT EXISTS dgs30 DOUBLE PRECISION")).
			WillReturnResult(pgxmock.NewResult("ALTER TABLE", 0))
		mock.ExpectCommit()

		Expect(manager.EnsureSchema(ctx, mock, data.TreasuryYieldsKey)).To(Succeed())
	})

	It("changes nothing on a table that already matches", func() {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).WithArgs(data.IndustryMappingKey).
			WillReturnRows(columnRows("sic_code", "integer", "sic_description", "text",
				"naics_code", "integer", "naics_description", "text", "legacy_note", "text"))
		mock.ExpectQuery(regexp.QuoteMeta(pkeyQuery)).WithArgs(data.IndustryMappingKey).
			WillReturnRows(pgxmock.NewRows([]string{"column_name"}).AddRow("sic_code").AddRow("naics_code"))
		mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS sic_to_naics_naics_code_idx")).
			WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
		mock.ExpectCommit()

		Expect(manager.EnsureSchema(ctx, mock, data.IndustryMappingKey)).To(Succeed())
	})

	It("refuses to change the type of a key column", func() {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).WithArgs(data.PriceBarsKey).
			WillReturnRows(columnRows("ticker", "text", "event_date", "timestamp with time zone", "close", "double precision"))
		mock.ExpectRollback()

		Expect(manager.EnsureSchema(ctx, mock, data.PriceBarsKey)).To(MatchError(schema.ErrSchemaConflict))
	})

	It("refuses a table keyed on different columns", func() {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).WithArgs(data.PriceBarsKey).
			WillReturnRows(columnRows("ticker", "text", "event_date", "date"))
		mock.ExpectQuery(regexp.QuoteMeta(pkeyQuery)).WithArgs(data.PriceBarsKey).
			WillReturnRows(pgxmock.NewRows([]string{"column_name"}).AddRow("ticker"))
		mock.ExpectRollback()

		Expect(manager.EnsureSchema(ctx, mock, data.PriceBarsKey)).To(MatchError(schema.ErrSchemaConflict))
	})

	It("refuses a table missing a key column", func() {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).WithArgs(data.CompanyDetailsKey).
			WillReturnRows(columnRows("name", "text"))
		mock.ExpectRollback()

		err := manager.EnsureSchema(ctx, mock, data.CompanyDetailsKey)
		Expect(err).To(MatchError(schema.ErrSchemaConflict))
		Expect(err.Error()).To(ContainSubstring("ticker"))
	})
})

var _ = Describe("Manager against postgres", Label("database"), func() {
	It("creates exactly one table and primary key when run twice", func(ctx SpecContext) {
		dbURL := os.Getenv("FINELT_TEST_DB_URL")
		if dbURL == "" {
			Skip("FINELT_TEST_DB_URL is not set")
		}

		pool, err := pgxpool.New(ctx, dbURL)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(pool.Close)

		_, err = pool.Exec(ctx, "DROP TABLE IF EXISTS price_bars")
		Expect(err).ToNot(HaveOccurred())

		manager := schema.New(zerolog.Nop())
		Expect(manager.EnsureSchema(ctx, pool, data.PriceBarsKey)).To(Succeed())
		Expect(manager.EnsureSchema(ctx, pool, data.PriceBarsKey)).To(Succeed())

		var numTables, numKeys int
		Expect(pool.QueryRow(ctx, `SELECT count(*) FROM information_schema.tables
WHERE table_schema = current_schema() AND table_name = 'price_bars'`).Scan(&numTables)).To(Succeed())
		Expect(pool.QueryRow(ctx, `SELECT count(*) FROM information_schema.table_constraints
WHERE table_schema = current_schema() AND table_name = 'price_bars' AND constraint_type = 'PRIMARY KEY'`).Scan(&numKeys)).To(Succeed())
		Expect(numTables).To(Equal(1))
		Expect(numKeys).To(Equal(1))
	})
})

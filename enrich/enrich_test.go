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
package enrich_test

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"

	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/enrich"
	"github.com/penny-vault/finelt/library"
)

func strPtr(s string) *string { return &s }

func int64Ptr(i int64) *int64 { return &i }

var software = &data.IndustryMapping{SICCode: 7372, SICDescription: "Prepackaged Software", NAICSCode: 513210, NAICSDescription: "Software Publishers"}
var gaming = &data.IndustryMapping{SICCode: 7372, SICDescription: "Prepackaged Software", NAICSCode: 541511, NAICSDescription: "Custom Computer Programming Services"}

var _ = Describe("Enricher", func() {
	var enricher *enrich.Enricher

	BeforeEach(func() {
		enricher = enrich.New(zerolog.Nop())
	})

	It("uses the lowest NAICS code when a SIC code has several", func() {
		enricher.Add(gaming, software)
		mapping, ok := enricher.Lookup(7372)
		Expect(ok).To(BeTrue())
		Expect(mapping.NAICSCode).To(Equal(int64(513210)))
		Expect(enricher.Len()).To(Equal(1))
	})

	It("leaves classification empty when there is nothing to join", func() {
		enricher.Add(software)

		companies := enricher.Enrich(
			&data.CompanyDetails{Ticker: "MSFT", SICCode: int64Ptr(7372)},
			&data.CompanyDetails{Ticker: "SPY"},
			&data.CompanyDetails{Ticker: "XYZ", SICCode: int64Ptr(9999)},
		)

		Expect(companies).To(HaveLen(3))
		Expect(companies[0].Ticker).To(Equal("MSFT"))
		Expect(companies[0].NAICSCode).To(HaveValue(Equal(int64(513210))))
		Expect(companies[0].NAICSDescription).To(HaveValue(Equal("Software Publishers")))
		Expect(companies[0].SICDescription).To(HaveValue(Equal("Prepackaged Software")))

		for _, company := range companies[1:] {
			Expect(company.SICDescription).To(BeNil())
			Expect(company.NAICSCode).To(BeNil())
			Expect(company.NAICSDescription).To(BeNil())
		}
		Expect(companies[2].SICCode).To(HaveValue(Equal(int64(9999))))
	})

	It("writes enriched companies as csv", func() {
		enricher.Add(software)
		companies := enricher.Enrich(
			&data.CompanyDetails{Ticker: "MSFT", Name: strPtr("Microsoft Corp"), SICCode: int64Ptr(7372)},
			&data.CompanyDetails{Ticker: "SPY"},
		)

		buf := &bytes.Buffer{}
		Expect(enrich.WriteCSV(buf, companies)).To(Succeed())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(3))
		Expect(lines[0]).To(HavePrefix("ticker,name,market_cap,"))
		Expect(lines[0]).To(HaveSuffix("sic_code,sic_description,naics_code,naics_description"))
		Expect(lines[1]).To(Equal("MSFT,Microsoft Corp,,,,,,,,,7372,Prepackaged Software,513210,Software Publishers"))
		Expect(lines[2]).To(Equal("SPY,,,,,,,,,,,,,"))
	})

	Describe("database", func() {
		var (
			ctx  context.Context
			mock pgxmock.PgxPoolIface
		)

		BeforeEach(func() {
			var err error
			ctx = context.Background()
			mock, err = pgxmock.NewPool()
			Expect(err).ToNot(HaveOccurred())
			DeferCleanup(mock.Close)
		})

		AfterEach(func() {
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})

		It("loads the crosswalk into the cache", func() {
			mock.ExpectQuery(regexp.QuoteMeta("FROM sic_to_naics ORDER BY sic_code, naics_code")).
				WillReturnRows(pgxmock.NewRows([]string{"sic_code", "sic_description", "naics_code", "naics_description"}).
					AddRow(int64(7372), "Prepackaged Software", int64(513210), "Software Publishers").
					AddRow(int64(7372), "Prepackaged Software", int64(541511), "Custom Computer Programming Services").
					AddRow(int64(3571), "Electronic Computers", int64(334111), "Electronic Computer Manufacturing"))

			numRead, err := enricher.LoadCache(ctx, mock)
			Expect(err).ToNot(HaveOccurred())
			Expect(numRead).To(Equal(3))
			Expect(enricher.Len()).To(Equal(2))

			mapping, ok := enricher.Lookup(7372)
			Expect(ok).To(BeTrue())
			Expect(mapping.NAICSCode).To(Equal(int64(513210)))
		})

		It("joins at read time", func() {
			mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN")+"(?s).*"+regexp.QuoteMeta("WHERE c.ticker = $1")).WithArgs("MSFT").
				WillReturnRows(pgxmock.NewRows([]string{"ticker", "sic_code", "naics_code"}).
					AddRow("MSFT", int64Ptr(7372), int64Ptr(513210)))

			company, err := enrich.Query(ctx, mock, "MSFT")
			Expect(err).ToNot(HaveOccurred())
			Expect(company.Ticker).To(Equal("MSFT"))
			Expect(company.NAICSCode).To(HaveValue(Equal(int64(513210))))
		})

		It("reports unknown tickers as not found", func() {
			mock.ExpectQuery(regexp.QuoteMeta("WHERE c.ticker = $1")).WithArgs("ZZZZ").
				WillReturnRows(pgxmock.NewRows([]string{"ticker"}))

			_, err := enrich.Query(ctx, mock, "ZZZZ")
			Expect(err).To(MatchError(library.ErrNotFound))
		})
	})
})

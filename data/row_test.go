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
package data_test

import (
	"bytes"
	"time"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/finelt/data"
)

var _ = Describe("Row", func() {
	var prices *data.TableSpec

	BeforeEach(func() {
		var err error
		prices, err = data.Lookup(data.PriceBarsKey)
		Expect(err).ToNot(HaveOccurred())
	})

	It("rejects unknown tables", func() {
		_, err := data.Lookup("not_a_table")
		Expect(err).To(MatchError(data.ErrUnknownTable))
	})

	Describe("Key", func() {
		It("joins the natural key columns", func() {
			key, err := prices.RowKey(data.Row{"ticker": "MSFT", "event_date": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)})
			Expect(err).ToNot(HaveOccurred())
			Expect(key).To(Equal("MSFT|2024-01-02"))
		})

		It("fails when a key column is null", func() {
			_, err := prices.RowKey(data.Row{"ticker": "MSFT", "event_date": nil})
			Expect(err).To(MatchError(data.ErrMissingKey))
		})
	})

	Describe("DecodeRow", func() {
		It("restores column types after a JSON round trip", func() {
			eventDate := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
			original := (&data.PriceBar{
				Ticker:    "MSFT",
				EventDate: eventDate,
				Open:      370.5,
				High:      375,
				Low:       366.5,
				Close:     370.87,
				Volume:    25258600,
			}).ToRow()

			buf, err := json.Marshal(original)
			Expect(err).ToNot(HaveOccurred())

			raw := make(map[string]any)
			dec := json.NewDecoder(bytes.NewReader(buf))
			dec.UseNumber()
			Expect(dec.Decode(&raw)).To(Succeed())

			row, err := prices.DecodeRow(raw)
			Expect(err).ToNot(HaveOccurred())
			Expect(row["ticker"]).To(Equal("MSFT"))
			Expect(row["event_date"]).To(BeTemporally("==", eventDate))
			Expect(row["open"]).To(Equal(370.5))
			Expect(row["high"]).To(Equal(375.0))
			Expect(row["volume"]).To(Equal(25258600.0))
			Expect(row["vwap"]).To(BeNil())
			Expect(row["transactions"]).To(BeNil())
		})

		It("converts integers and dates given as strings", func() {
			companies, err := data.Lookup(data.CompanyDetailsKey)
			Expect(err).ToNot(HaveOccurred())

			row, err := companies.DecodeRow(map[string]any{
				"ticker":    "AAPL",
				"sic_code":  json.Number("3571"),
				"list_date": "1980-12-12",
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(row["sic_code"]).To(Equal(int64(3571)))
			Expect(row["list_date"]).To(Equal(time.Date(1980, 12, 12, 0, 0, 0, 0, time.UTC)))
		})

		It("rejects values that do not fit the column", func() {
			_, err := prices.DecodeRow(map[string]any{"ticker": "MSFT", "open": "abc"})
			Expect(err).To(MatchError(data.ErrInvalidValue))
		})

		It("rejects columns the table does not declare", func() {
			_, err := prices.DecodeRow(map[string]any{"ticker": "MSFT", "dividend": 1.0})
			Expect(err).To(MatchError(data.ErrUnknownColumn))
		})
	})

	Describe("MergeByKey", func() {
		It("pivots sparse series rows into wide rows in first-seen order", func() {
			yields, err := data.Lookup(data.TreasuryYieldsKey)
			Expect(err).ToNot(HaveOccurred())

			d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
			d2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

			merged, err := yields.MergeByKey([]data.Row{
				{"event_date": d1, "dgs1mo": 5.55},
				{"event_date": d2, "dgs1mo": 5.54},
				{"event_date": d1, "dgs10": 3.95},
				{"event_date": d2, "dgs10": nil},
				{"event_date": d2, "dgs1mo": nil},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(merged).To(HaveLen(2))
			Expect(merged[0]).To(Equal(data.Row{"event_date": d1, "dgs1mo": 5.55, "dgs10": 3.95}))
			Expect(merged[1]).To(Equal(data.Row{"event_date": d2, "dgs1mo": 5.54, "dgs10": nil}))
		})
	})

	Describe("ToRow", func() {
		It("maps missing optional fields to null", func() {
			row := (&data.CompanyDetails{Ticker: "XYZ"}).ToRow()
			Expect(row).To(HaveKeyWithValue("ticker", "XYZ"))
			Expect(row).To(HaveKeyWithValue("sic_code", BeNil()))
			Expect(row).To(HaveLen(11))
		})
	})
})

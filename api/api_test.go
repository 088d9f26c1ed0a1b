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
package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/penny-vault/finelt/api"
	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/library"
)

type fakeStore struct {
	companies map[string]*data.EnrichedCompany
	tickers   map[string]*data.Ticker
	err       error

	yieldArgs []any
	priceArgs []any
}

func (store *fakeStore) Company(_ context.Context, ticker string) (*data.EnrichedCompany, error) {
	if store.err != nil {
		return nil, store.err
	}

	company, ok := store.companies[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: company %s", library.ErrNotFound, ticker)
	}
	return company, nil
}

func (store *fakeStore) Companies(context.Context) ([]*data.EnrichedCompany, error) {
	out := make([]*data.EnrichedCompany, 0, len(store.companies))
	for _, company := range store.companies {
		out = append(out, company)
	}
	return out, store.err
}

func (store *fakeStore) PriceHistory(_ context.Context, ticker string, start, end time.Time) ([]*data.PriceBar, error) {
	store.priceArgs = []any{ticker, start, end}
	return []*data.PriceBar{{Ticker: ticker, EventDate: start, Close: 410.5}}, store.err
}

func (store *fakeStore) Yields(_ context.Context, start, end time.Time, page, size int) ([]*data.TreasuryYield, error) {
	store.yieldArgs = []any{start, end, page, size}
	return []*data.TreasuryYield{}, store.err
}

func (store *fakeStore) YieldOn(_ context.Context, date time.Time) (*data.TreasuryYield, error) {
	return nil, fmt.Errorf("%w: yields on %s", library.ErrNotFound, date.Format(time.DateOnly))
}

func (store *fakeStore) Tickers(_ context.Context, activeOnly bool) ([]*data.Ticker, error) {
	out := make([]*data.Ticker, 0)
	for _, ticker := range store.tickers {
		if !activeOnly || ticker.Active {
			out = append(out, ticker)
		}
	}
	return out, store.err
}

func (store *fakeStore) RegisterTicker(_ context.Context, ticker *data.Ticker) error {
	if _, ok := store.tickers[ticker.Ticker]; ok {
		return fmt.Errorf("%w: ticker %s", library.ErrAlreadyExists, ticker.Ticker)
	}
	store.tickers[ticker.Ticker] = ticker
	return nil
}

var _ = Describe("REST facade", func() {
	var (
		store  *fakeStore
		router *gin.Engine
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)

		name := "Microsoft Corp"
		naics := int64(513210)
		store = &fakeStore{
			companies: map[string]*data.EnrichedCompany{
				"MSFT": {CompanyDetails: data.CompanyDetails{Ticker: "MSFT", Name: &name}, NAICSCode: &naics},
			},
			tickers: map[string]*data.Ticker{
				"MSFT": {Ticker: "MSFT", Name: name, Active: true, Source: "api"},
				"TWTR": {Ticker: "TWTR", Name: "Twitter", Active: false, Source: "api"},
			},
		}

		router = api.NewRouter(&api.Config{Handler: api.NewHandler(store, zerolog.Nop()), Logger: zerolog.Nop()})
	})

	serve := func(method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		decoded := map[string]any{}
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
		return w, decoded
	}

	It("returns an enriched company", func() {
		w, body := serve(http.MethodGet, "/companies/msft", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("ticker", "MSFT"))
		Expect(body).To(HaveKeyWithValue("naics_code", BeNumerically("==", 513210)))
		Expect(body).To(HaveKeyWithValue("sic_description", BeNil()))
	})

	It("maps unknown companies to 404", func() {
		w, body := serve(http.MethodGet, "/companies/ZZZZ", "")
		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(body).To(Equal(map[string]any{"error": "not found"}))
	})

	It("hides internal errors", func() {
		store.err = errors.New("connection refused: password authentication failed for user finelt")
		w, body := serve(http.MethodGet, "/companies/MSFT", "")
		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(body).To(Equal(map[string]any{"error": "internal server error"}))
	})

	It("parses the price date range", func() {
		w, _ := serve(http.MethodGet, "/prices/msft?start=2024-01-02&end=2024-01-31", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(store.priceArgs).To(Equal([]any{"MSFT",
			time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)}))
	})

	DescribeTable("rejects bad query parameters",
		func(path string) {
			w, body := serve(http.MethodGet, path, "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(body).To(HaveKey("error"))
		},
		Entry("malformed date", "/prices/MSFT?start=01/02/2024"),
		Entry("reversed range", "/prices/MSFT?start=2024-02-01&end=2024-01-01"),
		Entry("page size too large", "/yields?page_size=2000"),
		Entry("page zero", "/yields?page=0"),
		Entry("malformed yield date", "/yields/yesterday"),
		Entry("active flag", "/tickers?active=maybe"),
	)

	It("pages yields with defaults", func() {
		w, body := serve(http.MethodGet, "/yields", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(store.yieldArgs).To(Equal([]any{time.Time{}, time.Time{}, 1, 100}))
		Expect(body).To(HaveKeyWithValue("page_size", BeNumerically("==", 100)))
	})

	It("returns 404 for a date without yields", func() {
		w, _ := serve(http.MethodGet, "/yields/2024-01-01", "")
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("filters active tickers", func() {
		w, _ := serve(http.MethodGet, "/tickers?active=true", "")
		Expect(w.Code).To(Equal(http.StatusOK))

		tickers := make([]*data.Ticker, 0)
		Expect(json.Unmarshal(w.Body.Bytes(), &tickers)).To(Succeed())
		Expect(tickers).To(HaveLen(1))
		Expect(tickers[0].Ticker).To(Equal("MSFT"))
	})

	Describe("registering tickers", func() {
		It("creates an upper-cased ticker", func() {
			w, body := serve(http.MethodPost, "/tickers", `{"ticker":"aapl","name":"Apple Inc"}`)
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(body).To(HaveKeyWithValue("ticker", "AAPL"))
			Expect(store.tickers).To(HaveKey("AAPL"))
			Expect(store.tickers["AAPL"].Active).To(BeTrue())
		})

		It("rejects duplicates with 409", func() {
			w, body := serve(http.MethodPost, "/tickers", `{"ticker":"MSFT","name":"Microsoft Corp"}`)
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(body).To(Equal(map[string]any{"error": "already exists"}))
		})

		DescribeTable("validates the request",
			func(payload string) {
				w, _ := serve(http.MethodPost, "/tickers", payload)
				Expect(w.Code).To(Equal(http.StatusBadRequest))
			},
			Entry("missing name", `{"ticker":"AAPL"}`),
			Entry("missing ticker", `{"name":"Apple Inc"}`),
			Entry("ticker too long", `{"ticker":"ABCDEFGHIJK","name":"Too Long"}`),
			Entry("not json", `ticker=AAPL`),
		)
	})

	It("reports the build version", func() {
		w, body := serve(http.MethodGet, "/version", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("name", "finelt"))
		Expect(body).To(HaveKeyWithValue("version", "dev"))
	})
})

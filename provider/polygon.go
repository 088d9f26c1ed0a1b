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
package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/data"
)

// Polygon fetches company reference data and daily aggregates from polygon.io
type Polygon struct {
	client   *resty.Client
	limiter  *rate.Limiter
	baseURL  string
	pageSize int
	nyc      *time.Location
}

func NewPolygon(cfg config.Polygon, pageSize int) *Polygon {
	nyc, err := time.LoadLocation("America/New_York")
	if err != nil {
		nyc = time.UTC
	}

	if pageSize <= 0 {
		pageSize = 5000
	}

	return &Polygon{
		client:   resty.New().SetQueryParam("apiKey", cfg.APIKey),
		limiter:  newLimiter(cfg.RateLimit),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: pageSize,
		nyc:      nyc,
	}
}

func (polygon *Polygon) Name() string {
	return "polygon"
}

func (polygon *Polygon) Table(kind string) string {
	if kind == "range" {
		return data.PriceBarsKey
	}

	return data.CompanyDetailsKey
}

type polygonResponse struct {
	Results   *json.RawMessage `json:"results"`
	Status    string           `json:"status"`
	RequestID string           `json:"request_id"`
	Count     int              `json:"resultsCount"`
	Next      string           `json:"next_url"`
}

type polygonTickerDetails struct {
	Ticker            string   `json:"ticker"`
	Name              *string  `json:"name"`
	MarketCap         *float64 `json:"market_cap"`
	Active            *bool    `json:"active"`
	CompositeFIGI     *string  `json:"composite_figi"`
	CurrencyName      *string  `json:"currency_name"`
	ListDate          string   `json:"list_date"`
	PrimaryExchange   *string  `json:"primary_exchange"`
	SharesOutstanding *float64 `json:"share_class_shares_outstanding"`
	TotalEmployees    *float64 `json:"total_employees"`
	SIC               string   `json:"sic_code"`
}

type polygonAggregate struct {
	Volume       float64  `json:"v"`
	VWAP         *float64 `json:"vw"`
	Open         float64  `json:"o"`
	Close        float64  `json:"c"`
	High         float64  `json:"h"`
	Low          float64  `json:"l"`
	Timestamp    int64    `json:"t"`
	Transactions *int64   `json:"n"`
}

func (polygon *Polygon) get(ctx context.Context, reqURL string, params map[string]string) (*polygonResponse, error) {
	if err := polygon.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	respContent := &polygonResponse{}
	resp, err := polygon.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetQueryParams(params).
		SetResult(respContent).
		Get(reqURL)

	if err := checkResponse(ctx, resp, err); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("URL", reqURL).Msg("polygon request failed")
		return nil, err
	}

	return respContent, nil
}

// FetchSingle returns the company details of ticker
func (polygon *Polygon) FetchSingle(ctx context.Context, ticker string) (data.Row, error) {
	reqURL := fmt.Sprintf("%s/v3/reference/tickers/%s", polygon.baseURL, url.PathEscape(ticker))
	respContent, err := polygon.get(ctx, reqURL, nil)
	if err != nil {
		return nil, err
	}

	if respContent.Results == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ticker)
	}

	var details polygonTickerDetails
	if err := json.Unmarshal(*respContent.Results, &details); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("Ticker", ticker).Msg("could not unmarshal polygon ticker details")
		return nil, err
	}

	company := &data.CompanyDetails{
		Ticker:          ticker,
		Name:            details.Name,
		MarketCap:       details.MarketCap,
		Active:          details.Active,
		CompositeFigi:   details.CompositeFIGI,
		BaseCurrency:    details.CurrencyName,
		PrimaryExchange: details.PrimaryExchange,
	}

	if details.ListDate != "" {
		if listDate, err := time.Parse(time.DateOnly, details.ListDate); err == nil {
			company.ListDate = &listDate
		} else {
			zerolog.Ctx(ctx).Warn().Err(err).Str("Ticker", ticker).Str("ListDate", details.ListDate).Msg("could not parse list date")
		}
	}

	if details.SharesOutstanding != nil {
		shares := int64(*details.SharesOutstanding)
		company.SharesOutstanding = &shares
	}

	if details.TotalEmployees != nil {
		employees := int64(*details.TotalEmployees)
		company.TotalEmployees = &employees
	}

	if details.SIC != "" {
		if sic, err := strconv.ParseInt(details.SIC, 10, 64); err == nil {
			company.SICCode = &sic
		}
	}

	return company.ToRow(), nil
}

func (polygon *Polygon) FetchBatch(ctx context.Context, tickers []string) []Outcome {
	return fetchEach(ctx, polygon, tickers)
}

// FetchRange returns a page of daily bars. The cursor is polygon's next_url.
func (polygon *Polygon) FetchRange(ctx context.Context, ticker string, start, end time.Time, cursor string) (*Page, error) {
	reqURL := cursor
	var params map[string]string

	if cursor == "" {
		reqURL = fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s", polygon.baseURL, url.PathEscape(ticker),
			start.Format(time.DateOnly), end.Format(time.DateOnly))
		params = map[string]string{
			"adjusted": "true",
			"sort":     "asc",
			"limit":    strconv.Itoa(polygon.pageSize),
		}
	}

	respContent, err := polygon.get(ctx, reqURL, params)
	if err != nil {
		return nil, err
	}

	aggs := make([]*polygonAggregate, 0, polygon.pageSize)
	if respContent.Results != nil {
		if err := json.Unmarshal(*respContent.Results, &aggs); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("Ticker", ticker).Msg("could not unmarshal polygon aggregates")
			return nil, err
		}
	}

	if len(aggs) == 0 && cursor == "" {
		return nil, fmt.Errorf("%w: %s %s..%s", ErrNotFound, ticker, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	page := &Page{
		Rows: make([]data.Row, 0, len(aggs)),
		Next: respContent.Next,
	}

	for _, agg := range aggs {
		tradeDay := time.UnixMilli(agg.Timestamp).In(polygon.nyc)
		bar := &data.PriceBar{
			Ticker:       ticker,
			EventDate:    time.Date(tradeDay.Year(), tradeDay.Month(), tradeDay.Day(), 0, 0, 0, 0, time.UTC),
			Open:         agg.Open,
			High:         agg.High,
			Low:          agg.Low,
			Close:        agg.Close,
			Volume:       agg.Volume,
			VWAP:         agg.VWAP,
			Transactions: agg.Transactions,
		}

		page.Rows = append(page.Rows, bar.ToRow())
	}

	zerolog.Ctx(ctx).Debug().Str("Ticker", ticker).Int("NumRows", len(page.Rows)).Bool("HasNext", page.Next != "").Msg("fetched price page")
	return page, nil
}

type polygonTicker struct {
	Ticker string  `json:"ticker"`
	Name   string  `json:"name"`
	Market *string `json:"market"`
	Locale *string `json:"locale"`
	Active bool    `json:"active"`
}

// ListTickers pages through polygon's reference endpoint and returns every
// active stock ticker of assetType (CS, ETF, ...; empty for all types)
func (polygon *Polygon) ListTickers(ctx context.Context, assetType string) ([]*data.Ticker, error) {
	// NOTE: results are limited to stocks
	maxQueries := 1000

	tickers := make([]*data.Ticker, 0, 6000)
	reqURL := polygon.baseURL + "/v3/reference/tickers"
	params := map[string]string{
		"market": "stocks",
		"active": "true",
		"limit":  "1000",
	}

	if assetType != "" {
		params["type"] = assetType
	}

	for ii := 0; ii < maxQueries && reqURL != ""; ii++ {
		respContent, err := polygon.get(ctx, reqURL, params)
		if err != nil {
			return tickers, err
		}

		page := make([]*polygonTicker, 0, 1000)
		if respContent.Results != nil {
			if err := json.Unmarshal(*respContent.Results, &page); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("could not unmarshal polygon tickers")
				return tickers, err
			}
		}

		for _, ticker := range page {
			tickers = append(tickers, &data.Ticker{
				Ticker: ticker.Ticker,
				Name:   ticker.Name,
				Market: ticker.Market,
				Locale: ticker.Locale,
				Active: ticker.Active,
				Source: polygon.Name(),
			})
		}

		zerolog.Ctx(ctx).Info().Int("ReceivedNTickers", len(page)).Str("AssetType", assetType).Int("Page", ii).Msg("got tickers")

		// next_url already carries the query
		reqURL = respContent.Next
		params = nil
	}

	return tickers, nil
}

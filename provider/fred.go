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
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/data"
)

// Fred fetches economic series observations from the St. Louis Fed
type Fred struct {
	client   *resty.Client
	limiter  *rate.Limiter
	baseURL  string
	pageSize int
}

type fredObservation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

type fredResponse struct {
	Count        int               `json:"count"`
	Offset       int               `json:"offset"`
	Limit        int               `json:"limit"`
	Observations []fredObservation `json:"observations"`
}

type fredError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

func NewFred(cfg config.Fred, pageSize int) *Fred {
	if pageSize <= 0 || pageSize > 100000 {
		pageSize = 100000
	}

	return &Fred{
		client: resty.New().
			SetQueryParam("api_key", cfg.APIKey).
			SetQueryParam("file_type", "json"),
		limiter:  newLimiter(cfg.RateLimit),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: pageSize,
	}
}

func (fred *Fred) Name() string {
	return "fred"
}

func (fred *Fred) Table(string) string {
	return data.TreasuryYieldsKey
}

func (fred *Fred) observations(ctx context.Context, series string, params map[string]string) (*fredResponse, error) {
	if err := fred.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var (
		respContent fredResponse
		errContent  fredError
	)

	resp, err := fred.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetQueryParam("series_id", series).
		SetQueryParams(params).
		SetResult(&respContent).
		SetError(&errContent).
		Get(fred.baseURL + "/fred/series/observations")

	if err == nil && resp.StatusCode() == 400 {
		// FRED answers 400 for unknown series and bad keys
		msg := strings.ToLower(errContent.Message)
		switch {
		case strings.Contains(msg, "does not exist"):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, series)
		case strings.Contains(msg, "api_key"):
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, errContent.Message)
		}
	}

	if err := checkResponse(ctx, resp, err); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("Series", series).Msg("fred request failed")
		return nil, err
	}

	return &respContent, nil
}

func (fred *Fred) toRow(ctx context.Context, series string, obs fredObservation) (data.Row, error) {
	eventDate, err := time.Parse(time.DateOnly, obs.Date)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("DateStr", obs.Date).Msg("parsing observation date failed")
		return nil, err
	}

	row := data.Row{
		"event_date":              eventDate,
		data.SeriesColumn(series): nil,
	}

	// a "." value is a day without an observation
	if obs.Value != "." {
		val, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("ValueStr", obs.Value).Msg("parsing observation value failed")
			return nil, err
		}
		row[data.SeriesColumn(series)] = val
	}

	return row, nil
}

// FetchSingle returns the most recent observation of a series
func (fred *Fred) FetchSingle(ctx context.Context, series string) (data.Row, error) {
	resp, err := fred.observations(ctx, series, map[string]string{
		"sort_order": "desc",
		"limit":      "1",
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Observations) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, series)
	}

	return fred.toRow(ctx, series, resp.Observations[0])
}

func (fred *Fred) FetchBatch(ctx context.Context, series []string) []Outcome {
	return fetchEach(ctx, fred, series)
}

// FetchRange returns a page of observations. The cursor is the offset of the
// next page.
func (fred *Fred) FetchRange(ctx context.Context, series string, start, end time.Time, cursor string) (*Page, error) {
	offset := 0
	if cursor != "" {
		var err error
		if offset, err = strconv.Atoi(cursor); err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidCursor, cursor, err)
		}
	}

	resp, err := fred.observations(ctx, series, map[string]string{
		"observation_start": start.Format(time.DateOnly),
		"observation_end":   end.Format(time.DateOnly),
		"sort_order":        "asc",
		"limit":             strconv.Itoa(fred.pageSize),
		"offset":            strconv.Itoa(offset),
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Observations) == 0 && offset == 0 {
		return nil, fmt.Errorf("%w: %s %s..%s", ErrNotFound, series, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	page := &Page{
		Rows: make([]data.Row, 0, len(resp.Observations)),
	}

	for _, obs := range resp.Observations {
		row, err := fred.toRow(ctx, series, obs)
		if err != nil {
			return nil, err
		}
		page.Rows = append(page.Rows, row)
	}

	next := offset + len(resp.Observations)
	if len(resp.Observations) > 0 && next < resp.Count {
		page.Next = strconv.Itoa(next)
	}

	return page, nil
}

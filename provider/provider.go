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
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/data"
)

var (
	ErrInvalidStatusCode = errors.New("invalid status code received")
	ErrTransient         = errors.New("transient provider failure")
	ErrNotFound          = errors.New("provider has no data for identifier")
	ErrUnauthorized      = errors.New("provider rejected credentials")
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrInvalidCursor     = errors.New("invalid page cursor")
)

// Client retrieves records from an external data provider. Implementations
// honor the provider's rate limit and classify failures as ErrTransient,
// ErrNotFound or ErrUnauthorized.
type Client interface {
	Name() string

	// Table is the destination table of rows returned by the client
	Table(kind string) string

	FetchSingle(ctx context.Context, id string) (data.Row, error)

	// FetchBatch returns one outcome per id in the order requested
	FetchBatch(ctx context.Context, ids []string) []Outcome

	// FetchRange returns one page of records for id between start and end
	// (inclusive). An empty cursor requests the first page; Page.Next is
	// empty on the last page.
	FetchRange(ctx context.Context, id string, start, end time.Time, cursor string) (*Page, error)
}

type Outcome struct {
	ID  string
	Row data.Row
	Err error
}

type Page struct {
	Rows []data.Row
	Next string
}

// New constructs the named provider client from configuration
func New(name string, env *config.Env) (Client, error) {
	cfg := env.Config
	switch name {
	case "polygon":
		return NewPolygon(cfg.Polygon, cfg.Extract.PageSize), nil
	case "fred":
		return NewFred(cfg.Fred, cfg.Extract.PageSize), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

// IsTransient reports if err may succeed when retried
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// newLimiter spreads requestsPerMinute evenly over a minute
func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 5
	}

	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/float64(61)), 1)
}

// checkResponse classifies a resty result into the provider error kinds
func checkResponse(ctx context.Context, resp *resty.Response, err error) error {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	code := resp.StatusCode()
	switch {
	case code < 300:
		return nil
	case code == 404:
		return fmt.Errorf("%w: %s", ErrNotFound, resp.Request.URL)
	case code == 401 || code == 403:
		return fmt.Errorf("%w (%d)", ErrUnauthorized, code)
	case code == 429 || code >= 500:
		return fmt.Errorf("%w: status code %d", ErrTransient, code)
	default:
		return fmt.Errorf("%w (%d): %s", ErrInvalidStatusCode, code, string(resp.Body()))
	}
}

// fetchEach implements FetchBatch for providers without a batch endpoint
func fetchEach(ctx context.Context, client Client, ids []string) []Outcome {
	outcomes := make([]Outcome, len(ids))
	for idx, id := range ids {
		outcomes[idx].ID = id
		if err := ctx.Err(); err != nil {
			outcomes[idx].Err = err
			continue
		}

		outcomes[idx].Row, outcomes[idx].Err = client.FetchSingle(ctx, id)
	}

	return outcomes
}

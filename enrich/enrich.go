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
package enrich

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/library"
)

const enrichedSQL = `SELECT c.ticker, c.name, c.market_cap, c.active, c.composite_figi, c.base_currency,
c.list_date, c.primary_exchange, c.shares_outstanding, c.total_employees, c.sic_code,
m.sic_description, m.naics_code, m.naics_description
FROM company_details c
LEFT JOIN (
  SELECT DISTINCT ON (sic_code) sic_code, sic_description, naics_code, naics_description
  FROM sic_to_naics ORDER BY sic_code, naics_code
) m ON m.sic_code = c.sic_code`

// Enricher attaches industry classifications to companies from an in-memory
// copy of the SIC to NAICS crosswalk. When a SIC code maps to several NAICS
// codes the lowest NAICS code is used.
type Enricher struct {
	industries *haxmap.Map[int64, *data.IndustryMapping]
	logger     zerolog.Logger
}

func New(logger zerolog.Logger) *Enricher {
	return &Enricher{
		industries: haxmap.New[int64, *data.IndustryMapping](),
		logger:     logger,
	}
}

// LoadCache reads the crosswalk from the database into the cache and returns
// the number of mappings read
func (enricher *Enricher) LoadCache(ctx context.Context, db library.DB) (int, error) {
	mappings := make([]*data.IndustryMapping, 0)
	if err := pgxscan.Select(ctx, db, &mappings, `SELECT sic_code, sic_description, naics_code, naics_description
FROM sic_to_naics ORDER BY sic_code, naics_code`); err != nil {
		return 0, err
	}

	enricher.Add(mappings...)
	enricher.logger.Debug().Int("NumMappings", len(mappings)).Int("NumSICCodes", enricher.Len()).Msg("loaded industry cache")

	return len(mappings), nil
}

// Add puts mappings in the cache
func (enricher *Enricher) Add(mappings ...*data.IndustryMapping) {
	for _, mapping := range mappings {
		existing, loaded := enricher.industries.GetOrSet(mapping.SICCode, mapping)
		if loaded && mapping.NAICSCode < existing.NAICSCode {
			enricher.industries.Set(mapping.SICCode, mapping)
		}
	}
}

// Lookup returns the mapping used for a SIC code
func (enricher *Enricher) Lookup(sicCode int64) (*data.IndustryMapping, bool) {
	return enricher.industries.Get(sicCode)
}

// Len returns the number of distinct SIC codes in the cache
func (enricher *Enricher) Len() int {
	return int(enricher.industries.Len())
}

// Enrich returns companies in the same order with their classification
// attached. Classification fields stay nil when the company has no SIC code
// or the code has no mapping.
func (enricher *Enricher) Enrich(companies ...*data.CompanyDetails) []*data.EnrichedCompany {
	enriched := make([]*data.EnrichedCompany, len(companies))
	for idx, company := range companies {
		out := &data.EnrichedCompany{CompanyDetails: *company}
		if company.SICCode != nil {
			if mapping, ok := enricher.Lookup(*company.SICCode); ok {
				sicDescription := mapping.SICDescription
				naicsCode := mapping.NAICSCode
				naicsDescription := mapping.NAICSDescription

				out.SICDescription = &sicDescription
				out.NAICSCode = &naicsCode
				out.NAICSDescription = &naicsDescription
			}
		}
		enriched[idx] = out
	}

	return enriched
}

// Query joins the stored details of ticker with the crosswalk
func Query(ctx context.Context, db library.DB, ticker string) (*data.EnrichedCompany, error) {
	company := &data.EnrichedCompany{}
	err := pgxscan.Get(ctx, db, company, enrichedSQL+" WHERE c.ticker = $1", ticker)
	if pgxscan.NotFound(err) {
		return nil, fmt.Errorf("%w: company %s", library.ErrNotFound, ticker)
	}

	return company, err
}

// QueryAll joins every stored company with the crosswalk
func QueryAll(ctx context.Context, db library.DB) ([]*data.EnrichedCompany, error) {
	companies := make([]*data.EnrichedCompany, 0)
	err := pgxscan.Select(ctx, db, &companies, enrichedSQL+" ORDER BY c.ticker")
	return companies, err
}

type csvCompany struct {
	Ticker            string `csv:"ticker"`
	Name              string `csv:"name"`
	MarketCap         string `csv:"market_cap"`
	Active            string `csv:"active"`
	CompositeFigi     string `csv:"composite_figi"`
	BaseCurrency      string `csv:"base_currency"`
	ListDate          string `csv:"list_date"`
	PrimaryExchange   string `csv:"primary_exchange"`
	SharesOutstanding string `csv:"shares_outstanding"`
	TotalEmployees    string `csv:"total_employees"`
	SICCode           string `csv:"sic_code"`
	SICDescription    string `csv:"sic_description"`
	NAICSCode         string `csv:"naics_code"`
	NAICSDescription  string `csv:"naics_description"`
}

// WriteCSV writes companies as CSV with a header row. Missing values are
// written as empty fields.
func WriteCSV(w io.Writer, companies []*data.EnrichedCompany) error {
	records := make([]*csvCompany, len(companies))
	for idx, company := range companies {
		records[idx] = &csvCompany{
			Ticker:            company.Ticker,
			Name:              deref(company.Name, identity),
			MarketCap:         deref(company.MarketCap, formatFloat),
			Active:            deref(company.Active, strconv.FormatBool),
			CompositeFigi:     deref(company.CompositeFigi, identity),
			BaseCurrency:      deref(company.BaseCurrency, identity),
			ListDate:          deref(company.ListDate, formatDate),
			PrimaryExchange:   deref(company.PrimaryExchange, identity),
			SharesOutstanding: deref(company.SharesOutstanding, formatInt),
			TotalEmployees:    deref(company.TotalEmployees, formatInt),
			SICCode:           deref(company.SICCode, formatInt),
			SICDescription:    deref(company.SICDescription, identity),
			NAICSCode:         deref(company.NAICSCode, formatInt),
			NAICSDescription:  deref(company.NAICSDescription, identity),
		}
	}

	return gocsv.Marshal(records, w)
}

func deref[T any](ptr *T, format func(T) string) string {
	if ptr == nil {
		return ""
	}

	return format(*ptr)
}

func identity(s string) string { return s }

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func formatInt(i int64) string { return strconv.FormatInt(i, 10) }

func formatDate(dt time.Time) string { return dt.Format(time.DateOnly) }

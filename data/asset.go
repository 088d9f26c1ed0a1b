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
package data

import (
	"time"

	"github.com/rs/zerolog"
)

// Ticker is a registered instrument identifier
type Ticker struct {
	Ticker string  `json:"ticker" db:"ticker"`
	Name   string  `json:"name" db:"name"`
	Market *string `json:"market,omitempty" db:"market"`
	Locale *string `json:"locale,omitempty" db:"locale"`
	Active bool    `json:"active" db:"active"`
	Source string  `json:"source" db:"source"`
}

func (ticker *Ticker) ToRow() Row {
	return Row{
		"ticker": ticker.Ticker,
		"name":   ticker.Name,
		"market": value(ticker.Market),
		"locale": value(ticker.Locale),
		"active": ticker.Active,
		"source": ticker.Source,
	}
}

// CompanyDetails is the reference record of a listed company. Every field
// except the ticker is optional.
type CompanyDetails struct {
	Ticker            string     `json:"ticker" db:"ticker"`
	Name              *string    `json:"name" db:"name"`
	MarketCap         *float64   `json:"market_cap" db:"market_cap"`
	Active            *bool      `json:"active" db:"active"`
	CompositeFigi     *string    `json:"composite_figi" db:"composite_figi"`
	BaseCurrency      *string    `json:"base_currency" db:"base_currency"`
	ListDate          *time.Time `json:"list_date" db:"list_date"`
	PrimaryExchange   *string    `json:"primary_exchange" db:"primary_exchange"`
	SharesOutstanding *int64     `json:"shares_outstanding" db:"shares_outstanding"`
	TotalEmployees    *int64     `json:"total_employees" db:"total_employees"`
	SICCode           *int64     `json:"sic_code" db:"sic_code"`
}

func (company *CompanyDetails) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Ticker", company.Ticker)
	if company.Name != nil {
		e.Str("Name", *company.Name)
	}
	if company.SICCode != nil {
		e.Int64("SICCode", *company.SICCode)
	}
}

func (company *CompanyDetails) ToRow() Row {
	return Row{
		"ticker":             company.Ticker,
		"name":               value(company.Name),
		"market_cap":         value(company.MarketCap),
		"active":             value(company.Active),
		"composite_figi":     value(company.CompositeFigi),
		"base_currency":      value(company.BaseCurrency),
		"list_date":          value(company.ListDate),
		"primary_exchange":   value(company.PrimaryExchange),
		"shares_outstanding": value(company.SharesOutstanding),
		"total_employees":    value(company.TotalEmployees),
		"sic_code":           value(company.SICCode),
	}
}

// EnrichedCompany is a company with its industry classification attached.
// The classification fields are nil when no mapping exists.
type EnrichedCompany struct {
	CompanyDetails

	SICDescription   *string `json:"sic_description" db:"sic_description"`
	NAICSCode        *int64  `json:"naics_code" db:"naics_code"`
	NAICSDescription *string `json:"naics_description" db:"naics_description"`
}

func value[T any](ptr *T) any {
	if ptr == nil {
		return nil
	}

	return *ptr
}

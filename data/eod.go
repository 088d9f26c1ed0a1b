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
)

// PriceBar is one daily OHLCV aggregate for a ticker
type PriceBar struct {
	Ticker       string    `json:"ticker" db:"ticker"`
	EventDate    time.Time `json:"event_date" db:"event_date"`
	Open         float64   `json:"open" db:"open"`
	High         float64   `json:"high" db:"high"`
	Low          float64   `json:"low" db:"low"`
	Close        float64   `json:"close" db:"close"`
	Volume       float64   `json:"volume" db:"volume"`
	VWAP         *float64  `json:"vwap" db:"vwap"`
	Transactions *int64    `json:"transactions" db:"transactions"`
}

func (bar *PriceBar) ToRow() Row {
	return Row{
		"ticker":       bar.Ticker,
		"event_date":   bar.EventDate,
		"open":         bar.Open,
		"high":         bar.High,
		"low":          bar.Low,
		"close":        bar.Close,
		"volume":       bar.Volume,
		"vwap":         value(bar.VWAP),
		"transactions": value(bar.Transactions),
	}
}

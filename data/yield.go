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
	"strings"
	"time"
)

// TreasurySeries are the constant maturity yield series stored in the
// treasury_yields table
var TreasurySeries = []string{"DGS1MO", "DGS3MO", "DGS6MO", "DGS1", "DGS2", "DGS5", "DGS10", "DGS30"}

// SeriesColumn returns the treasury_yields column that holds a series
func SeriesColumn(series string) string {
	return strings.ToLower(series)
}

// TreasuryYield is the yield curve observed on a single day. A nil tenor
// means the series had no observation that day.
type TreasuryYield struct {
	EventDate time.Time `json:"event_date" db:"event_date"`
	DGS1MO    *float64  `json:"dgs1mo" db:"dgs1mo"`
	DGS3MO    *float64  `json:"dgs3mo" db:"dgs3mo"`
	DGS6MO    *float64  `json:"dgs6mo" db:"dgs6mo"`
	DGS1      *float64  `json:"dgs1" db:"dgs1"`
	DGS2      *float64  `json:"dgs2" db:"dgs2"`
	DGS5      *float64  `json:"dgs5" db:"dgs5"`
	DGS10     *float64  `json:"dgs10" db:"dgs10"`
	DGS30     *float64  `json:"dgs30" db:"dgs30"`
}

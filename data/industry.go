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

// IndustryMapping is one row of the SIC to NAICS crosswalk
type IndustryMapping struct {
	SICCode          int64  `json:"sic_code" db:"sic_code" csv:"SIC Code"`
	SICDescription   string `json:"sic_description" db:"sic_description" csv:"SIC_Description"`
	NAICSCode        int64  `json:"naics_code" db:"naics_code" csv:"NAICS Code"`
	NAICSDescription string `json:"naics_description" db:"naics_description" csv:"NAICS_Description"`
}

func (mapping *IndustryMapping) ToRow() Row {
	return Row{
		"sic_code":          mapping.SICCode,
		"sic_description":   mapping.SICDescription,
		"naics_code":        mapping.NAICSCode,
		"naics_description": mapping.NAICSDescription,
	}
}

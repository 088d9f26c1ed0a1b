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
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hako/durafmt"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/penny-vault/finelt/extract"
	"github.com/penny-vault/finelt/loader"
)

// Summary describes the outcome of a run
type Summary struct {
	RunID string
	Table string

	NumIDs    int
	Extracted int
	Loaded    int
	Skipped   int
	NoData    []string
	Failed    []*extract.Failure
	RowErrors []*loader.RowError

	Duration time.Duration
}

// Complete reports if every identifier and every row made it into the store
func (summary *Summary) Complete() bool {
	return len(summary.Failed) == 0 && len(summary.RowErrors) == 0
}

// String returns a one line description suitable for logs and pings
func (summary *Summary) String() string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%s: extracted %d rows, loaded %d, %d identifiers without data, %d failed identifiers, %d failed rows",
		summary.Table, summary.Extracted, summary.Loaded, len(summary.NoData), len(summary.Failed), len(summary.RowErrors))
}

// Render formats the summary for the terminal
func (summary *Summary) Render() string {
	p := message.NewPrinter(language.English)
	keyword := func(s string) string {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Render(s)
	}

	title := "RUN COMPLETE"
	if !summary.Complete() {
		title = "RUN INCOMPLETE"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\nRun: %s\nTable: %s\nIdentifiers: %s\nSkipped: %s\nExtracted: %s\nLoaded: %s\nRun time: %s\n",
		lipgloss.NewStyle().Bold(true).Render(title),
		keyword(summary.RunID),
		keyword(summary.Table),
		keyword(p.Sprintf("%d", summary.NumIDs)),
		keyword(p.Sprintf("%d", summary.Skipped)),
		keyword(p.Sprintf("%d", summary.Extracted)),
		keyword(p.Sprintf("%d", summary.Loaded)),
		keyword(durafmt.Parse(summary.Duration.Round(time.Millisecond)).LimitFirstN(2).String()),
	)

	if len(summary.NoData) > 0 {
		fmt.Fprintf(&sb, "\nNo data: %s\n", keyword(strings.Join(summary.NoData, ", ")))
	}

	if len(summary.Failed) > 0 {
		fmt.Fprintln(&sb, "\n"+lipgloss.NewStyle().Bold(true).Render("Failed identifiers"))
		for _, failure := range summary.Failed {
			fmt.Fprintf(&sb, "\n%s: %s", keyword(failure.ID), failure.Err)
		}
		fmt.Fprintln(&sb)
	}

	if len(summary.RowErrors) > 0 {
		fmt.Fprintln(&sb, "\n"+lipgloss.NewStyle().Bold(true).Render("Failed rows"))
		for _, rowErr := range summary.RowErrors {
			fmt.Fprintf(&sb, "\n%s: %s", keyword(rowErr.Key), rowErr.Err)
		}
		fmt.Fprintln(&sb)
	}

	return lipgloss.NewStyle().
		Width(72).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(1, 2).
		Render(sb.String())
}

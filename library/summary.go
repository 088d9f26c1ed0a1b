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
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xeonx/timeago"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/penny-vault/finelt/checkpoint"
	"github.com/penny-vault/finelt/data"
)

// Summary returns a description of the library in markdown: the number of
// rows in each table and the checkpoints of runs that have not finished
func (myLibrary *Library) Summary(ctx context.Context, checkpoints []*checkpoint.Checkpoint) (string, error) {
	conn, release, err := myLibrary.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	return Summary(ctx, conn, myLibrary.Name, myLibrary.DBUrl, checkpoints)
}

func Summary(ctx context.Context, db DB, name, dbURL string, checkpoints []*checkpoint.Checkpoint) (string, error) {
	p := message.NewPrinter(language.English)
	builder := strings.Builder{}

	if name == "" {
		name = "finelt"
	}

	builder.WriteString(fmt.Sprintf("# %s\n", name))
	builder.WriteString("## Details\n\n")
	builder.WriteString(fmt.Sprintf("Database: %s\n\n", redact(dbURL)))

	// Row counts
	builder.WriteString("## Tables\n\n")

	var total int64
	for _, table := range data.TableNames() {
		count, err := RowCount(ctx, db, table)
		if isUndefinedTable(err) {
			builder.WriteString(p.Sprintf("  * %s: not created\n", table))
			continue
		}

		if err != nil {
			return "", err
		}

		total += count
		builder.WriteString(p.Sprintf("  * %s: %d rows\n", table, count))
	}

	builder.WriteString(p.Sprintf("\nTotal Records: %d\n\n", total))

	// Unfinished runs
	builder.WriteString("## Open checkpoints\n\n")

	if len(checkpoints) == 0 {
		builder.WriteString("None\n")
	}

	for _, cp := range checkpoints {
		done, noData, failed := cp.Counts()
		builder.WriteString(p.Sprintf("  * %s %s [%s] updated %s\n", cp.Kind, cp.Table, shortID(cp.RunID), timeago.English.Format(cp.UpdatedAt)))
		builder.WriteString(p.Sprintf("    * done: %d, no data: %d, failed: %d, pending rows: %d\n", done, noData, failed, cp.NumRows()))
	}

	return builder.String(), nil
}

// redact hides the password of a database url
func redact(dbURL string) string {
	config, err := pgconn.ParseConfig(dbURL)
	if err != nil || config.Password == "" {
		return dbURL
	}

	return strings.Replace(dbURL, ":"+config.Password+"@", ":****@", 1)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

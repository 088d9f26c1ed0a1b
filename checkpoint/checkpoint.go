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
package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/penny-vault/finelt/data"
)

// Version of the persisted checkpoint layout
const Version = 1

var (
	ErrNotFound           = errors.New("checkpoint not found")
	ErrUnsupportedVersion = errors.New("unsupported checkpoint version")
)

var runNamespace = uuid.MustParse("6f1c2a8e-3f7b-5a0e-9d4c-2b7e1f0a9c31")

// Status of a processed unit of work
type Status string

const (
	StatusDone   Status = "done"
	StatusNoData Status = "no_data"
)

// Checkpoint records the progress of a multi-step extraction so an
// interrupted run can continue where it left off
type Checkpoint struct {
	Version       int
	RunID         string
	Kind          string
	Table         string
	Processed     map[string]Status
	Failed        map[string]string
	Cursors       map[string]string
	Pending       []*Pending
	RangeComplete bool
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// request the checkpoint was created for
	IDs   []string
	Start time.Time
	End   time.Time
}

// Pending holds rows extracted for one identifier that have not been loaded
type Pending struct {
	ID   string
	Rows []data.Row
}

type wirePending struct {
	ID   string           `json:"id"`
	Rows []map[string]any `json:"rows"`
}

type wireCheckpoint struct {
	Version       int               `json:"version"`
	RunID         string            `json:"run_id"`
	Kind          string            `json:"kind"`
	Table         string            `json:"table"`
	Processed     map[string]Status `json:"processed"`
	Failed        map[string]string `json:"failed"`
	Cursors       map[string]string `json:"cursors"`
	Pending       []*wirePending    `json:"pending"`
	RangeComplete bool              `json:"range_complete"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	IDs           []string          `json:"ids,omitempty"`
	Start         string            `json:"start,omitempty"`
	End           string            `json:"end,omitempty"`
}

func New(runID, kind, table string) *Checkpoint {
	now := time.Now()
	return &Checkpoint{
		Version:   Version,
		RunID:     runID,
		Kind:      kind,
		Table:     table,
		Processed: make(map[string]Status),
		Failed:    make(map[string]string),
		Cursors:   make(map[string]string),
		Pending:   make([]*Pending, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RunID derives a stable identifier for an extraction request. Issuing the
// same request again resolves to the same checkpoint.
func RunID(kind, table string, ids []string, start, end time.Time) string {
	canonical := fmt.Sprintf("%s|%s|%s|%s|%s", kind, table, strings.Join(sortedIDs(ids), ","), dateStr(start), dateStr(end))
	return uuid.NewSHA1(runNamespace, []byte(canonical)).String()
}

// SetRequest records the identifiers and date range the checkpoint tracks
func (cp *Checkpoint) SetRequest(ids []string, start, end time.Time) {
	cp.IDs = sortedIDs(ids)
	cp.Start = start
	cp.End = end
}

// Matches reports if the checkpoint was created for a request with the same
// kind, table, identifiers and start date. The end date is not compared.
func (cp *Checkpoint) Matches(kind, table string, ids []string, start time.Time) bool {
	return cp.Kind == kind && cp.Table == table && dateStr(cp.Start) == dateStr(start) &&
		slices.Equal(cp.IDs, sortedIDs(ids))
}

func sortedIDs(ids []string) []string {
	keys := slices.Clone(ids)
	slices.Sort(keys)
	return slices.Compact(keys)
}

func dateStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func parseDate(str string) (time.Time, error) {
	if str == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, str)
}

// Clone returns a deep copy of the checkpoint maps and pending slice
func (cp *Checkpoint) Clone() *Checkpoint {
	out := *cp
	out.Processed = maps.Clone(cp.Processed)
	out.Failed = maps.Clone(cp.Failed)
	out.Cursors = maps.Clone(cp.Cursors)
	out.IDs = slices.Clone(cp.IDs)

	out.Pending = make([]*Pending, len(cp.Pending))
	for idx, group := range cp.Pending {
		rows := make([]data.Row, len(group.Rows))
		for jj, row := range group.Rows {
			rows[jj] = row.Clone()
		}
		out.Pending[idx] = &Pending{ID: group.ID, Rows: rows}
	}

	if out.Processed == nil {
		out.Processed = make(map[string]Status)
	}
	if out.Failed == nil {
		out.Failed = make(map[string]string)
	}
	if out.Cursors == nil {
		out.Cursors = make(map[string]string)
	}

	return &out
}

// IsProcessed reports if key reached a terminal state
func (cp *Checkpoint) IsProcessed(key string) bool {
	_, ok := cp.Processed[key]
	return ok
}

func (cp *Checkpoint) MarkDone(key string) {
	cp.Processed[key] = StatusDone
	delete(cp.Failed, key)
	delete(cp.Cursors, key)
}

func (cp *Checkpoint) MarkNoData(key string) {
	cp.Processed[key] = StatusNoData
	delete(cp.Failed, key)
	delete(cp.Cursors, key)
}

func (cp *Checkpoint) MarkFailed(key string, err error) {
	cp.Failed[key] = err.Error()
}

// AddRows appends rows to the pending group of id. Groups keep the order in
// which their identifiers were first seen.
func (cp *Checkpoint) AddRows(id string, rows ...data.Row) {
	for _, group := range cp.Pending {
		if group.ID == id {
			group.Rows = append(group.Rows, rows...)
			return
		}
	}

	cp.Pending = append(cp.Pending, &Pending{ID: id, Rows: rows})
}

// Rows returns every pending row in insertion order
func (cp *Checkpoint) Rows() []data.Row {
	rows := make([]data.Row, 0, cp.NumRows())
	for _, group := range cp.Pending {
		rows = append(rows, group.Rows...)
	}

	return rows
}

func (cp *Checkpoint) NumRows() int {
	count := 0
	for _, group := range cp.Pending {
		count += len(group.Rows)
	}

	return count
}

// Counts returns the number of keys in each state
func (cp *Checkpoint) Counts() (done, noData, failed int) {
	for _, status := range cp.Processed {
		switch status {
		case StatusDone:
			done++
		case StatusNoData:
			noData++
		}
	}

	return done, noData, len(cp.Failed)
}

func (cp *Checkpoint) touch() {
	cp.UpdatedAt = time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	if cp.Version == 0 {
		cp.Version = Version
	}
}

// Encode serializes the checkpoint to JSON
func (cp *Checkpoint) Encode() ([]byte, error) {
	wire := wireCheckpoint{
		Version:       cp.Version,
		RunID:         cp.RunID,
		Kind:          cp.Kind,
		Table:         cp.Table,
		Processed:     cp.Processed,
		Failed:        cp.Failed,
		Cursors:       cp.Cursors,
		Pending:       make([]*wirePending, len(cp.Pending)),
		RangeComplete: cp.RangeComplete,
		CreatedAt:     cp.CreatedAt,
		UpdatedAt:     cp.UpdatedAt,
		IDs:           cp.IDs,
		Start:         dateStr(cp.Start),
		End:           dateStr(cp.End),
	}

	for idx, group := range cp.Pending {
		rows := make([]map[string]any, len(group.Rows))
		for jj, row := range group.Rows {
			rows[jj] = row
		}
		wire.Pending[idx] = &wirePending{ID: group.ID, Rows: rows}
	}

	return json.Marshal(wire)
}

// Decode parses a checkpoint written by Encode. Pending rows are converted
// back to the column types of the checkpoint's table.
func Decode(buf []byte) (*Checkpoint, error) {
	var wire wireCheckpoint

	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return nil, err
	}

	if wire.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, wire.Version)
	}

	cp := &Checkpoint{
		Version:       wire.Version,
		RunID:         wire.RunID,
		Kind:          wire.Kind,
		Table:         wire.Table,
		Processed:     wire.Processed,
		Failed:        wire.Failed,
		Cursors:       wire.Cursors,
		Pending:       make([]*Pending, 0, len(wire.Pending)),
		RangeComplete: wire.RangeComplete,
		CreatedAt:     wire.CreatedAt,
		UpdatedAt:     wire.UpdatedAt,
		IDs:           wire.IDs,
	}

	var err error
	if cp.Start, err = parseDate(wire.Start); err != nil {
		return nil, err
	}
	if cp.End, err = parseDate(wire.End); err != nil {
		return nil, err
	}

	if len(wire.Pending) > 0 {
		spec, err := data.Lookup(wire.Table)
		if err != nil {
			return nil, err
		}

		for _, group := range wire.Pending {
			rows := make([]data.Row, 0, len(group.Rows))
			for _, raw := range group.Rows {
				row, err := spec.DecodeRow(raw)
				if err != nil {
					return nil, err
				}
				rows = append(rows, row)
			}
			cp.Pending = append(cp.Pending, &Pending{ID: group.ID, Rows: rows})
		}
	}

	// Clone replaces null maps with empty ones
	return cp.Clone(), nil
}

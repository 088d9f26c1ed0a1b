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
package reference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/library"
	"github.com/penny-vault/finelt/loader"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

type parquetMapping struct {
	SICCode          int64  `parquet:"name=sic_code, type=INT64"`
	SICDescription   string `parquet:"name=sic_description, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	NAICSCode        int64  `parquet:"name=naics_code, type=INT64"`
	NAICSDescription string `parquet:"name=naics_description, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

// ReadCSV parses a SIC to NAICS crosswalk with the headers
// "SIC Code,SIC_Description,NAICS Code,NAICS_Description". Rows without
// both codes are dropped.
func ReadCSV(r io.Reader) ([]*data.IndustryMapping, error) {
	records := make([]*data.IndustryMapping, 0)
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, err
	}

	return complete(records), nil
}

// ReadParquet reads a crosswalk previously written by WriteParquet
func ReadParquet(fn string) ([]*data.IndustryMapping, error) {
	fh, err := local.NewLocalFileReader(fn)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	pr, err := reader.NewParquetReader(fh, new(parquetMapping), 4)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()

	rows := make([]parquetMapping, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, err
	}

	records := make([]*data.IndustryMapping, len(rows))
	for idx, row := range rows {
		records[idx] = &data.IndustryMapping{
			SICCode:          row.SICCode,
			SICDescription:   row.SICDescription,
			NAICSCode:        row.NAICSCode,
			NAICSDescription: row.NAICSDescription,
		}
	}

	return complete(records), nil
}

// ReadFile reads a crosswalk, choosing the format by file extension
func ReadFile(fn string) ([]*data.IndustryMapping, error) {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".csv", ".txt":
		fh, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer fh.Close()
		return ReadCSV(fh)
	case ".parquet":
		return ReadParquet(fn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fn)
	}
}

// WriteParquet saves records as a zstd compressed parquet file
func WriteParquet(records []*data.IndustryMapping, fn string) error {
	fh, err := local.NewLocalFileWriter(fn)
	if err != nil {
		return err
	}
	defer fh.Close()

	pw, err := writer.NewParquetWriter(fh, new(parquetMapping), 4)
	if err != nil {
		return err
	}

	pw.CompressionType = parquet.CompressionCodec_ZSTD

	for _, record := range records {
		if err := pw.Write(parquetMapping{
			SICCode:          record.SICCode,
			SICDescription:   record.SICDescription,
			NAICSCode:        record.NAICSCode,
			NAICSDescription: record.NAICSDescription,
		}); err != nil {
			return err
		}
	}

	return pw.WriteStop()
}

// Load inserts records into the sic_to_naics table. Mappings that already
// exist are left untouched.
func Load(ctx context.Context, env *config.Env, db library.Acquirer, records []*data.IndustryMapping) (*loader.Result, error) {
	tbl := data.NewTable(data.IndustryMappingKey)
	for _, record := range records {
		tbl.Append(record.ToRow())
	}

	env.Logger.Info().Int("NumMappings", len(records)).Msg("loading industry crosswalk")
	return loader.New(env, db).Load(ctx, tbl)
}

func complete(records []*data.IndustryMapping) []*data.IndustryMapping {
	out := make([]*data.IndustryMapping, 0, len(records))
	for _, record := range records {
		if record.SICCode == 0 || record.NAICSCode == 0 {
			continue
		}
		out = append(out, record)
	}

	return out
}

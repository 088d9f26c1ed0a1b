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
package cmd

import (
	"context"
	"os"

	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/enrich"
	"github.com/penny-vault/finelt/library"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var outputFile string

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "Work with company details stored in the library",
}

var companiesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every company joined with its NAICS classification to CSV",
	Run: func(cmd *cobra.Command, args []string) {
		env := mustEnv(config.NeedDatabase)
		ctx := env.WithContext(context.Background())

		myLibrary := mustLibrary(ctx, env)
		defer myLibrary.Close()

		db, release, err := myLibrary.Acquire(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not acquire database connection")
		}
		defer release()

		enricher := enrich.New(env.Logger)
		if _, err := enricher.LoadCache(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("could not load industry mapping")
		}

		companies, err := library.Companies(ctx, db)
		if err != nil {
			log.Fatal().Err(err).Msg("could not read companies")
		}

		fh, err := os.Create(outputFile)
		if err != nil {
			log.Fatal().Err(err).Str("FileName", outputFile).Msg("could not create output file")
		}
		defer fh.Close()

		if err := enrich.WriteCSV(fh, enricher.Enrich(companies...)); err != nil {
			log.Fatal().Err(err).Str("FileName", outputFile).Msg("could not write companies")
		}

		log.Info().Int("NumCompanies", len(companies)).Str("FileName", outputFile).Msg("companies exported")
	},
}

func init() {
	rootCmd.AddCommand(companiesCmd)
	companiesCmd.AddCommand(companiesExportCmd)
	companiesExportCmd.Flags().StringVar(&outputFile, "csv", "companies.csv", "CSV file to write")
}

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

	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/reference"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var industriesCmd = &cobra.Command{
	Use:   "industries",
	Short: "Manage the SIC to NAICS industry mapping",
}

var industriesLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load a SIC to NAICS mapping from a CSV or parquet file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := mustEnv(config.NeedDatabase)
		ctx := env.WithContext(context.Background())

		records, err := reference.ReadFile(args[0])
		if err != nil {
			log.Fatal().Err(err).Str("FileName", args[0]).Msg("could not read industry mapping")
		}

		myLibrary := mustLibrary(ctx, env)
		defer myLibrary.Close()

		result, err := reference.Load(ctx, env, myLibrary, records)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load industry mapping")
		}

		log.Info().Int("NumRecords", len(records)).Int("Loaded", result.Loaded).Int("Failed", len(result.Failed)).Msg("industry mapping loaded")
	},
}

var industriesConvertCmd = &cobra.Command{
	Use:   "convert <in.csv> <out.parquet>",
	Short: "Convert a SIC to NAICS CSV file to parquet",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		records, err := reference.ReadFile(args[0])
		if err != nil {
			log.Fatal().Err(err).Str("FileName", args[0]).Msg("could not read industry mapping")
		}

		if err := reference.WriteParquet(records, args[1]); err != nil {
			log.Fatal().Err(err).Str("FileName", args[1]).Msg("could not write parquet file")
		}

		log.Info().Int("NumRecords", len(records)).Str("FileName", args[1]).Msg("wrote parquet file")
	},
}

func init() {
	rootCmd.AddCommand(industriesCmd)
	industriesCmd.AddCommand(industriesLoadCmd, industriesConvertCmd)
}

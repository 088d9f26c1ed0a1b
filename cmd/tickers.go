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
	"errors"
	"fmt"
	"strings"

	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/library"
	"github.com/penny-vault/finelt/loader"
	"github.com/penny-vault/finelt/provider"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	assetType  string
	showAll    bool
	tickerName string
)

var tickersCmd = &cobra.Command{
	Use:   "tickers",
	Short: "Manage the tickers extracted by 'extract details'",
}

var tickersSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Register every active ticker listed by Polygon",
	Long: `Page through Polygon's reference tickers endpoint and add each active
ticker to the library. Tickers that are already registered are left
unchanged.`,
	Run: func(cmd *cobra.Command, args []string) {
		env := mustEnv(config.NeedDatabase, config.NeedPolygon)
		ctx, stop := signalContext(env)
		defer stop()

		myLibrary := mustLibrary(ctx, env)
		defer myLibrary.Close()

		polygon := provider.NewPolygon(env.Config.Polygon, env.Config.Extract.PageSize)
		tickers, err := polygon.ListTickers(ctx, assetType)
		if err != nil {
			log.Fatal().Err(err).Int("NumTickers", len(tickers)).Msg("could not list polygon tickers")
		}

		tbl := data.NewTable(data.TickersKey)
		for _, ticker := range tickers {
			tbl.Append(ticker.ToRow())
		}

		result, err := loader.New(env, myLibrary).Load(ctx, tbl)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load tickers")
		}

		log.Info().Int("NumTickers", len(tickers)).Int("Loaded", result.Loaded).Int("Failed", len(result.Failed)).Msg("tickers synced")
	},
}

var tickersAddCmd = &cobra.Command{
	Use:   "add <ticker>",
	Short: "Register a single ticker",
	Args:  cobra.ExactArgs(1),
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

		ticker := &data.Ticker{
			Ticker: strings.ToUpper(args[0]),
			Name:   tickerName,
			Active: true,
			Source: "manual",
		}

		err = library.RegisterTicker(ctx, db, ticker)
		switch {
		case errors.Is(err, library.ErrAlreadyExists):
			log.Warn().Str("Ticker", ticker.Ticker).Msg("ticker is already registered")
		case err != nil:
			log.Fatal().Err(err).Str("Ticker", ticker.Ticker).Msg("could not register ticker")
		default:
			log.Info().Str("Ticker", ticker.Ticker).Msg("ticker registered")
		}
	},
}

var tickersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tickers",
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

		tickers, err := library.Tickers(ctx, db, !showAll)
		if err != nil {
			log.Fatal().Err(err).Msg("could not list tickers")
		}

		for _, ticker := range tickers {
			fmt.Printf("%-8s %-6t %s\n", ticker.Ticker, ticker.Active, ticker.Name)
		}
	},
}

func init() {
	rootCmd.AddCommand(tickersCmd)
	tickersCmd.AddCommand(tickersSyncCmd, tickersAddCmd, tickersListCmd)

	tickersSyncCmd.Flags().StringVar(&assetType, "type", "CS", "polygon asset type to sync (CS, ETF, ...; empty for all)")
	tickersAddCmd.Flags().StringVar(&tickerName, "name", "", "display name of the ticker")
	tickersListCmd.Flags().BoolVar(&showAll, "all", false, "include inactive tickers")
}

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
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/penny-vault/finelt/checkpoint"
	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/enrich"
	"github.com/penny-vault/finelt/extract"
	"github.com/penny-vault/finelt/healthcheck"
	"github.com/penny-vault/finelt/library"
	"github.com/penny-vault/finelt/loader"
	"github.com/penny-vault/finelt/pipeline"
	"github.com/penny-vault/finelt/provider"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	startDate string
	endDate   string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract data from a provider and load it into the library",
}

var detailsCmd = &cobra.Command{
	Use:   "details [tickers...]",
	Short: "Extract company details for tickers (default: every active ticker)",
	Long: `Extract company details from Polygon for each ticker in batches paced to the
configured rate limit. When no tickers are given every active ticker in the
library is extracted. Progress is checkpointed after every batch; run the
same command again to resume an interrupted extraction.`,
	Run: func(cmd *cobra.Command, args []string) {
		env := mustEnv(config.NeedDatabase, config.NeedPolygon, config.NeedCheckpoint)
		ctx, stop := signalContext(env)
		defer stop()

		myLibrary := mustLibrary(ctx, env)
		defer myLibrary.Close()

		tickers := args
		if len(tickers) == 0 {
			var err error
			tickers, err = activeTickers(ctx, myLibrary)
			if err != nil {
				log.Fatal().Err(err).Msg("could not list active tickers")
			}
		}

		runExtraction(ctx, env, myLibrary, "polygon", extract.KindBatch, extract.Request{IDs: tickers}, mustCheckpointStore(env, myLibrary))
	},
}

var companyCmd = &cobra.Command{
	Use:   "company <ticker>",
	Short: "Extract and print the details of a single company",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := mustEnv(config.NeedDatabase, config.NeedPolygon)
		ctx, stop := signalContext(env)
		defer stop()

		myLibrary := mustLibrary(ctx, env)
		defer myLibrary.Close()

		ticker := strings.ToUpper(args[0])
		runExtraction(ctx, env, myLibrary, "polygon", extract.KindSingle, extract.Request{IDs: []string{ticker}}, nil)

		db, release, err := myLibrary.Acquire(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not acquire database connection")
		}
		defer release()

		company, err := enrich.Query(ctx, db, ticker)
		if err != nil {
			log.Fatal().Err(err).Str("Ticker", ticker).Msg("could not read enriched company")
		}

		out, err := json.MarshalIndent(company, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("could not marshal company")
		}

		fmt.Println(string(out))
	},
}

var pricesCmd = &cobra.Command{
	Use:   "prices <tickers...>",
	Short: "Extract daily price bars for tickers between --start and --end",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := mustEnv(config.NeedDatabase, config.NeedPolygon, config.NeedCheckpoint)
		start, end := mustDateRange()

		ctx, stop := signalContext(env)
		defer stop()

		myLibrary := mustLibrary(ctx, env)
		defer myLibrary.Close()

		store := mustCheckpointStore(env, myLibrary)
		tickers := upper(args)
		req := extract.Request{IDs: tickers, Start: start, End: resumeEnd(ctx, store, data.PriceBarsKey, tickers, start, end)}
		runExtraction(ctx, env, myLibrary, "polygon", extract.KindRange, req, store)
	},
}

var yieldsCmd = &cobra.Command{
	Use:   "yields [series...]",
	Short: "Extract treasury yields from FRED between --start and --end",
	Long: `Extract daily constant maturity treasury yields from FRED. Each series
(DGS1MO, DGS10, ...) fills one maturity column of the treasury_yields table.
When no series are given the list in fred.series is used.`,
	Run: func(cmd *cobra.Command, args []string) {
		env := mustEnv(config.NeedDatabase, config.NeedFred, config.NeedCheckpoint)
		start, end := mustDateRange()

		series := upper(args)
		if len(series) == 0 {
			series = env.Config.Fred.Series
		}

		ctx, stop := signalContext(env)
		defer stop()

		myLibrary := mustLibrary(ctx, env)
		defer myLibrary.Close()

		store := mustCheckpointStore(env, myLibrary)
		req := extract.Request{IDs: series, Start: start, End: resumeEnd(ctx, store, data.TreasuryYieldsKey, series, start, end)}
		runExtraction(ctx, env, myLibrary, "fred", extract.KindRange, req, store)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.AddCommand(detailsCmd, companyCmd, pricesCmd, yieldsCmd)

	extractCmd.PersistentFlags().Int("batch-size", 0, "identifiers per batch (default is the provider rate limit)")
	extractCmd.PersistentFlags().Duration("pacing", time.Minute, "wait between batches")
	extractCmd.PersistentFlags().String("checkpoint", "", "checkpoint backend (file, database, redis)")

	for key, flag := range map[string]string{
		"extract.batch_size": "batch-size",
		"extract.pacing":     "pacing",
		"checkpoint.backend": "checkpoint",
	} {
		if err := viper.BindPFlag(key, extractCmd.PersistentFlags().Lookup(flag)); err != nil {
			log.Panic().Err(err).Str("Flag", flag).Msg("BindPFlag failed")
		}
	}

	for _, cmd := range []*cobra.Command{pricesCmd, yieldsCmd} {
		cmd.Flags().StringVar(&startDate, "start", "", "first date to extract (YYYY-MM-DD)")
		cmd.Flags().StringVar(&endDate, "end", "", "last date to extract (YYYY-MM-DD, default: end of an unfinished run, else today)")
		if err := cmd.MarkFlagRequired("start"); err != nil {
			log.Panic().Err(err).Msg("MarkFlagRequired failed")
		}
	}
}

func runExtraction(ctx context.Context, env *config.Env, myLibrary *library.Library, providerName string, kind extract.Kind, req extract.Request, store checkpoint.Store) {
	client, err := provider.New(providerName, env)
	if err != nil {
		log.Fatal().Err(err).Str("Provider", providerName).Msg("could not create provider client")
	}

	extractor, err := extract.New(kind, env, client, store)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create extractor")
	}

	runner := &pipeline.Runner{
		Extractor: extractor,
		Loader:    loader.New(env, myLibrary),
		Store:     store,
		Pinger:    healthcheck.New(env.Config.Healthchecks),
		Env:       env,
	}

	log.Info().Str("Provider", providerName).Stringer("Kind", kind).Int("NumIDs", len(req.IDs)).Msg("starting extraction")

	summary, err := runner.Run(ctx, req)
	if summary != nil {
		fmt.Println(summary.Render())
	}

	if errors.Is(err, pipeline.ErrIncomplete) {
		log.Error().Err(err).Msg("run did not finish; repeat the command to retry what failed")
		os.Exit(2)
	}

	if err != nil {
		log.Fatal().Err(err).Msg("extraction failed")
	}
}

func activeTickers(ctx context.Context, myLibrary *library.Library) ([]string, error) {
	db, release, err := myLibrary.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return library.ActiveTickers(ctx, db)
}

func mustDateRange() (time.Time, time.Time) {
	start, err := time.Parse(time.DateOnly, startDate)
	if err != nil {
		log.Fatal().Err(err).Str("Start", startDate).Msg("could not parse start date")
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	if endDate != "" {
		if end, err = time.Parse(time.DateOnly, endDate); err != nil {
			log.Fatal().Err(err).Str("End", endDate).Msg("could not parse end date")
		}
	}

	return start, end
}

// resumeEnd keeps the end date of an unfinished run with the same tickers and
// start when --end was not given, so the run id stays the same across days
func resumeEnd(ctx context.Context, store checkpoint.Store, table string, ids []string, start, end time.Time) time.Time {
	if endDate != "" {
		return end
	}

	openEnd, ok, err := extract.OpenRangeEnd(ctx, store, table, ids, start)
	if err != nil {
		log.Warn().Err(err).Msg("could not look for an unfinished run")
		return end
	}

	if ok {
		log.Info().Str("End", openEnd.Format(time.DateOnly)).Msg("resuming unfinished run; pass --end to start a new one")
		return openEnd
	}

	return end
}

func upper(ids []string) []string {
	out := make([]string, len(ids))
	for idx, id := range ids {
		out[idx] = strings.ToUpper(id)
	}

	return out
}

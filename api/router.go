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
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/penny-vault/finelt/pkginfo"
	"github.com/rs/zerolog"
)

type Config struct {
	Handler *Handler
	Logger  zerolog.Logger
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	registerCompanyRoutes(router, cfg.Handler)
	registerMarketRoutes(router, cfg.Handler)
	registerTickerRoutes(router, cfg.Handler)

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, pkginfo.Info())
	})

	return router
}

func registerCompanyRoutes(router *gin.Engine, h *Handler) {
	companies := router.Group("/companies")
	{
		companies.GET("", h.ListCompanies)
		companies.GET("/:ticker", h.GetCompany)
	}
}

func registerMarketRoutes(router *gin.Engine, h *Handler) {
	router.GET("/prices/:ticker", h.GetPrices)

	yields := router.Group("/yields")
	{
		yields.GET("", h.ListYields)
		yields.GET("/:date", h.GetYield)
	}
}

func registerTickerRoutes(router *gin.Engine, h *Handler) {
	tickers := router.Group("/tickers")
	{
		tickers.GET("", h.ListTickers)
		tickers.POST("", h.RegisterTicker)
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug().Str("Method", c.Request.Method).Str("Path", c.Request.URL.Path).
			Int("StatusCode", c.Writer.Status()).Dur("Elapsed", time.Since(start)).Msg("handled request")
	}
}

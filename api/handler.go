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
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/penny-vault/finelt/data"
	"github.com/penny-vault/finelt/library"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

var (
	errBadDate  = errors.New("dates must be formatted as YYYY-MM-DD")
	errBadRange = errors.New("start must not be after end")
)

type Handler struct {
	store  Store
	logger zerolog.Logger
}

func NewHandler(store Store, logger zerolog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

type registerRequest struct {
	Ticker string  `json:"ticker" binding:"required,max=10"`
	Name   string  `json:"name" binding:"required"`
	Market *string `json:"market"`
	Locale *string `json:"locale"`
}

func (h *Handler) GetCompany(c *gin.Context) {
	company, err := h.store.Company(c.Request.Context(), strings.ToUpper(c.Param("ticker")))
	if err != nil {
		h.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, company)
}

func (h *Handler) ListCompanies(c *gin.Context) {
	companies, err := h.store.Companies(c.Request.Context())
	if err != nil {
		h.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, companies)
}

func (h *Handler) GetPrices(c *gin.Context) {
	start, end, ok := h.dateRange(c)
	if !ok {
		return
	}

	bars, err := h.store.PriceHistory(c.Request.Context(), strings.ToUpper(c.Param("ticker")), start, end)
	if err != nil {
		h.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, bars)
}

func (h *Handler) ListYields(c *gin.Context) {
	start, end, ok := h.dateRange(c)
	if !ok {
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		badRequest(c, errors.New("page must be a positive integer"))
		return
	}

	size, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || size < 1 || size > maxPageSize {
		badRequest(c, errors.New("page_size must be between 1 and 1000"))
		return
	}

	yields, err := h.store.Yields(c.Request.Context(), start, end, page, size)
	if err != nil {
		h.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"page":      page,
		"page_size": size,
		"yields":    yields,
	})
}

func (h *Handler) GetYield(c *gin.Context) {
	date, err := time.Parse(time.DateOnly, c.Param("date"))
	if err != nil {
		badRequest(c, errBadDate)
		return
	}

	yield, err := h.store.YieldOn(c.Request.Context(), date)
	if err != nil {
		h.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, yield)
}

func (h *Handler) ListTickers(c *gin.Context) {
	activeOnly, err := strconv.ParseBool(c.DefaultQuery("active", "false"))
	if err != nil {
		badRequest(c, errors.New("active must be true or false"))
		return
	}

	tickers, err := h.store.Tickers(c.Request.Context(), activeOnly)
	if err != nil {
		h.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, tickers)
}

func (h *Handler) RegisterTicker(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ticker := &data.Ticker{
		Ticker: strings.ToUpper(strings.TrimSpace(req.Ticker)),
		Name:   req.Name,
		Market: req.Market,
		Locale: req.Locale,
		Active: true,
		Source: "api",
	}

	if err := h.store.RegisterTicker(c.Request.Context(), ticker); err != nil {
		h.abort(c, err)
		return
	}

	h.logger.Info().Str("Ticker", ticker.Ticker).Msg("registered ticker")
	c.JSON(http.StatusCreated, ticker)
}

// dateRange parses the optional start and end query parameters
func (h *Handler) dateRange(c *gin.Context) (time.Time, time.Time, bool) {
	var start, end time.Time
	for _, param := range []struct {
		name string
		dest *time.Time
	}{{"start", &start}, {"end", &end}} {
		val := c.Query(param.name)
		if val == "" {
			continue
		}

		dt, err := time.Parse(time.DateOnly, val)
		if err != nil {
			badRequest(c, errBadDate)
			return start, end, false
		}
		*param.dest = dt
	}

	if !start.IsZero() && !end.IsZero() && start.After(end) {
		badRequest(c, errBadRange)
		return start, end, false
	}

	return start, end, true
}

// abort maps store errors to responses without exposing internal detail
func (h *Handler) abort(c *gin.Context, err error) {
	switch {
	case errors.Is(err, library.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, library.ErrAlreadyExists):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "already exists"})
	default:
		h.logger.Error().Err(err).Str("Path", c.FullPath()).Msg("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

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
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/penny-vault/finelt/config"
)

var (
	ErrStatus = errors.New("status code is invalid")
)

// Pinger reports the progress of a run to a healthchecks.io check. A nil
// Pinger is valid and does nothing.
type Pinger struct {
	client  *resty.Client
	checkID string
}

// New returns a pinger for the configured check or nil if no check is
// configured
func New(cfg config.Healthchecks) *Pinger {
	if cfg.CheckID == "" {
		return nil
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://hc-ping.com"
	}

	return &Pinger{
		client:  resty.New().SetBaseURL(strings.TrimSuffix(baseURL, "/")).SetTimeout(10 * time.Second),
		checkID: cfg.CheckID,
	}
}

// Start signals that a run has begun
func (pinger *Pinger) Start(ctx context.Context) error {
	return pinger.ping(ctx, "/start", "")
}

// Success signals that a run finished; msg is attached to the ping
func (pinger *Pinger) Success(ctx context.Context, msg string) error {
	return pinger.ping(ctx, "", msg)
}

// Fail signals that a run did not finish
func (pinger *Pinger) Fail(ctx context.Context, msg string) error {
	return pinger.ping(ctx, "/fail", msg)
}

func (pinger *Pinger) ping(ctx context.Context, suffix, msg string) error {
	if pinger == nil {
		return nil
	}

	resp, err := pinger.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain").
		SetBody(msg).
		Post(fmt.Sprintf("/%s%s", pinger.checkID, suffix))
	if err != nil {
		return err
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}

	return nil
}

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
package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/penny-vault/finelt/config"
)

var _ = Describe("Config", func() {
	var v *viper.Viper

	BeforeEach(func() {
		v = viper.New()
		config.SetDefaults(v)
	})

	It("applies defaults", func() {
		cfg, err := config.Load(v)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Polygon.RateLimit).To(Equal(5))
		Expect(cfg.Extract.BatchSize).To(Equal(5))
		Expect(cfg.Extract.Pacing).To(Equal(time.Minute))
		Expect(cfg.Fred.Series).To(HaveLen(8))
		Expect(cfg.Checkpoint.Backend).To(Equal(config.CheckpointFile))
	})

	It("reads durations and numbers from strings", func() {
		v.Set("extract.pacing", "15s")
		v.Set("polygon.rate_limit", "100")

		cfg, err := config.Load(v)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Extract.Pacing).To(Equal(15 * time.Second))
		Expect(cfg.Extract.BatchSize).To(Equal(100))
	})

	It("picks up legacy environment names", func() {
		GinkgoT().Setenv("FRED_KEY", "fred-secret")

		cfg, err := config.Load(v)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Fred.APIKey).To(Equal("fred-secret"))
	})

	It("loads secret env files without overriding the environment", func() {
		dir := GinkgoT().TempDir()
		fn := filepath.Join(dir, ".env")
		Expect(os.WriteFile(fn, []byte("FINELT_TEST_ONLY_VALUE=from-file\nFINELT_TEST_PRESET=from-file\n"), 0o600)).To(Succeed())

		GinkgoT().Setenv("FINELT_TEST_PRESET", "from-env")
		GinkgoT().Setenv("FINELT_TEST_ONLY_VALUE", "")
		Expect(os.Unsetenv("FINELT_TEST_ONLY_VALUE")).To(Succeed())

		loaded := config.LoadDotenv(fn, filepath.Join(dir, "missing.env"))
		Expect(loaded).To(ConsistOf(fn))
		Expect(os.Getenv("FINELT_TEST_ONLY_VALUE")).To(Equal("from-file"))
		Expect(os.Getenv("FINELT_TEST_PRESET")).To(Equal("from-env"))
	})

	Describe("Validate", func() {
		It("reports every missing setting", func() {
			cfg, err := config.Load(v)
			Expect(err).ToNot(HaveOccurred())

			err = cfg.Validate(config.NeedDatabase, config.NeedPolygon)
			Expect(err).To(MatchError(config.ErrConfiguration))
			Expect(err.Error()).To(ContainSubstring("db.url"))
			Expect(err.Error()).To(ContainSubstring("polygon.api_key"))
		})

		It("rejects an unknown checkpoint backend", func() {
			v.Set("checkpoint.backend", "s3")
			cfg, err := config.Load(v)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Validate(config.NeedCheckpoint)).To(MatchError(config.ErrConfiguration))
		})

		It("passes when settings are present", func() {
			v.Set("db.url", "postgres://localhost/finelt")
			v.Set("polygon.api_key", "key")
			cfg, err := config.Load(v)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Validate(config.NeedDatabase, config.NeedPolygon, config.NeedCheckpoint)).To(Succeed())
		})
	})
})

package internal_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/finverse-reconciler/internal"
)

func validConfig() *internal.Config {
	return &internal.Config{
		Env: "development",
		Server: internal.ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
		},
		Finverse: internal.FinverseConfig{
			BaseURL:       "https://api.prod.finverse.net",
			ClientID:      "client",
			ClientSecret:  "secret",
			CustomerAppID: "app_1",
		},
		Storeganise: internal.StoreganiseConfig{
			BusinessCode: "dev-finverse",
			APIKey:       "key",
		},
		TokenStore: internal.TokenStoreConfig{Driver: internal.TokenStoreMemory},
		Observability: internal.ObservabilityConfig{
			Metrics: internal.MetricsConfig{Enabled: true, Path: "/metrics"},
			Logging: internal.LoggingConfig{Level: "info", Format: "text"},
		},
	}
}

var _ = Describe("Config", func() {
	It("accepts a complete configuration", func() {
		Expect(validConfig().Validate()).To(Succeed())
	})

	DescribeTable("rejects incomplete configuration",
		func(mutate func(*internal.Config), fragment string) {
			cfg := validConfig()
			mutate(cfg)

			err := cfg.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(fragment))
		},
		Entry("missing customer app id", func(c *internal.Config) { c.Finverse.CustomerAppID = "" }, "CustomerAppID"),
		Entry("missing client secret", func(c *internal.Config) { c.Finverse.ClientSecret = "" }, "ClientSecret"),
		Entry("bad finverse url", func(c *internal.Config) { c.Finverse.BaseURL = "not a url" }, "BaseURL"),
		Entry("missing api key", func(c *internal.Config) { c.Storeganise.APIKey = "" }, "APIKey"),
		Entry("business code with a path", func(c *internal.Config) { c.Storeganise.BusinessCode = "evil.com/x" }, "BusinessCode"),
		Entry("unknown token store", func(c *internal.Config) { c.TokenStore.Driver = "memcached" }, "Driver"),
		Entry("redis without address", func(c *internal.Config) { c.TokenStore.Driver = internal.TokenStoreRedis }, "redis.addr"),
		Entry("bad log level", func(c *internal.Config) { c.Observability.Logging.Level = "trace" }, "Level"),
		Entry("metrics without path", func(c *internal.Config) { c.Observability.Metrics.Path = "" }, "Path"),
		Entry("read timeout below header timeout", func(c *internal.Config) { c.Server.ReadTimeout = time.Second }, "read_timeout"),
		Entry("port out of range", func(c *internal.Config) { c.Server.Port = 70000 }, "Port"),
	)

	Describe("LoadConfigFromEnv", func() {
		BeforeEach(func() {
			GinkgoT().Setenv("FINVERSE_CLIENT_ID", "env-client")
			GinkgoT().Setenv("FINVERSE_CLIENT_SECRET", "env-secret")
			GinkgoT().Setenv("FINVERSE_CUSTOMER_APP_ID", "env-app")
			GinkgoT().Setenv("STOREGANISE_BUSINESS_CODE", "acme")
			GinkgoT().Setenv("STOREGANISE_API_KEY", "env-key")
		})

		It("reads credentials and applies defaults", func() {
			cfg := internal.LoadConfigFromEnv()

			Expect(cfg.Finverse.ClientID).To(Equal("env-client"))
			Expect(cfg.Finverse.BaseURL).To(Equal("https://api.prod.finverse.net"))
			Expect(cfg.Storeganise.BusinessCode).To(Equal("acme"))
			Expect(cfg.TokenStore.Driver).To(Equal(internal.TokenStoreMemory))
			Expect(cfg.Server.Port).To(Equal(8080))
			Expect(cfg.Validate()).To(Succeed())
		})

		It("parses typed values and ignores garbage", func() {
			GinkgoT().Setenv("HTTP_PORT", "9090")
			GinkgoT().Setenv("FINVERSE_TIMEOUT", "10s")
			GinkgoT().Setenv("METRICS_ENABLED", "maybe")

			cfg := internal.LoadConfigFromEnv()

			Expect(cfg.Server.Port).To(Equal(9090))
			Expect(cfg.Finverse.Timeout).To(Equal(10 * time.Second))
			Expect(cfg.Observability.Metrics.Enabled).To(BeTrue())
		})

		It("selects redis with its address", func() {
			GinkgoT().Setenv("TOKEN_STORE_DRIVER", "redis")
			GinkgoT().Setenv("REDIS_ADDR", "localhost:6379")

			cfg := internal.LoadConfigFromEnv()

			Expect(cfg.TokenStore.Driver).To(Equal(internal.TokenStoreRedis))
			Expect(cfg.TokenStore.Redis.KeyPrefix).To(Equal("finverse:token"))
			Expect(cfg.Validate()).To(Succeed())
		})
	})
})

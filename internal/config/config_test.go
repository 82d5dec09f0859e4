package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/voeux/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
			convey.So(cfg.WorkerCount, convey.ShouldBeBetweenOrEqual, 1, 8)
			convey.So(cfg.Levels, convey.ShouldResemble, []string{"L1", "L2", "L3", "M1", "M2"})
			convey.So(cfg.DefaultMaxChoice, convey.ShouldEqual, 5)
			convey.So(cfg.StoreBackend, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.LockBackend, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a valid config", t, func() {
		cfg := config.New(context.Background())

		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"zero queue", func(c *config.Config) { c.QueueSize = 0 }},
			{"zero workers", func(c *config.Config) { c.WorkerCount = 0 }},
			{"zero max choice", func(c *config.Config) { c.DefaultMaxChoice = 0 }},
			{"blend above one", func(c *config.Config) { c.ScoreRankBlend = 1.5 }},
			{"unknown log format", func(c *config.Config) { c.LogFormat = "xml" }},
			{"unknown store", func(c *config.Config) { c.StoreBackend = "mongo" }},
			{"postgres without url", func(c *config.Config) { c.StoreBackend = config.BackendPostgres }},
			{"unknown lock", func(c *config.Config) { c.LockBackend = "etcd" }},
			{"redis without addr", func(c *config.Config) { c.LockBackend = config.BackendRedis; c.RedisAddr = "" }},
			{"redis without ttl", func(c *config.Config) { c.LockBackend = config.BackendRedis; c.LockTTLSeconds = 0 }},
		}

		for _, tc := range cases {
			convey.Convey("When it has "+tc.name, func() {
				c := *cfg
				tc.mutate(&c)

				convey.Convey("Then validation fails", func() {
					convey.So(errors.Is(c.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When postgres and redis are fully configured", func() {
			c := *cfg
			c.StoreBackend = config.BackendPostgres
			c.DatabaseURL = "postgres://localhost/voeux"
			c.LockBackend = config.BackendRedis

			convey.Convey("Then validation passes", func() {
				convey.So(c.Validate(), convey.ShouldBeNil)
			})
		})
	})
}

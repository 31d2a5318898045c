package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/playrank/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.Store, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.Directory, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.SubmitStrategy, convey.ShouldEqual, "upsert")
			convey.So(cfg.NegativeScorePolicy, convey.ShouldEqual, "clamp")
			convey.So(cfg.NotifyMode, convey.ShouldEqual, "sync")
			convey.So(cfg.DefaultLeaderboardLimit, convey.ShouldEqual, 10)
			convey.So(cfg.MaxLeaderboardLimit, convey.ShouldEqual, 100)
			convey.So(cfg.GlobalCacheTTL, convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"*"})
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/playrank/internal/adapters/http/api"
	"github.com/okian/playrank/internal/config"
	"github.com/okian/playrank/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.InitWithOptions(io.Discard, "text"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	cfg := config.New(context.Background())
	cfg.DemoGames = 2
	cfg.DemoUsers = 3
	cfg.Seed = config.Seed{
		Games: []config.SeedGame{{ID: "space-race", Title: "Space Race"}},
		Users: []config.SeedUser{{ID: "alice", Username: "alice", FullName: "Alice Adams"}},
	}
	return cfg
}

func TestBuildResources(t *testing.T) {
	convey.Convey("Given the default in-memory configuration", t, func() {
		ctx := context.Background()
		cfg := testConfig()

		res, err := buildResources(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		defer res.close()

		convey.Convey("Then memory collaborators are selected", func() {
			convey.So(res.store, convey.ShouldNotBeNil)
			convey.So(res.conn, convey.ShouldBeNil)
			convey.So(res.cache, convey.ShouldBeNil)
		})

		convey.Convey("Then seed records and demo data are present", func() {
			g, err := res.directory.GetGame(ctx, "space-race")
			convey.So(err, convey.ShouldBeNil)
			convey.So(g.Title, convey.ShouldEqual, "Space Race")

			_, err = res.directory.GetGame(ctx, "game-2")
			convey.So(err, convey.ShouldBeNil)

			u, err := res.directory.GetUser(ctx, "alice")
			convey.So(err, convey.ShouldBeNil)
			convey.So(u.FullName, convey.ShouldEqual, "Alice Adams")

			_, err = res.directory.GetUser(ctx, "user-003")
			convey.So(err, convey.ShouldBeNil)
		})
	})

	convey.Convey("Given an unreachable redis", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		cfg := testConfig()
		cfg.RedisAddr = "127.0.0.1:1"

		res, err := buildResources(ctx, cfg)

		convey.Convey("Then startup continues without a cache", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.cache, convey.ShouldBeNil)
			res.close()
		})
	})
}

func TestNewService(t *testing.T) {
	convey.Convey("Given loaded resources", t, func() {
		ctx := context.Background()
		cfg := testConfig()
		res, err := buildResources(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		defer res.close()

		convey.Convey("When the configuration is valid", func() {
			cfg.SubmitStrategy = "optimistic"
			cfg.NotifyMode = "async"
			svc, err := newService(cfg, res, logger.Get())

			convey.Convey("Then the service starts and reports its settings", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(svc.Start(ctx), convey.ShouldBeNil)
				stats := svc.GetStats(ctx)
				convey.So(stats["submitStrategy"], convey.ShouldEqual, "optimistic")
				convey.So(stats["notifyMode"], convey.ShouldEqual, "async")
				convey.So(svc.Stop(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When an enum is unknown", func() {
			cfg.NegativeScorePolicy = "ignore"
			svc, err := newService(cfg, res, logger.Get())

			convey.Convey("Then construction fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(svc, convey.ShouldBeNil)
			})
		})
	})
}

func TestNewHandler(t *testing.T) {
	convey.Convey("Given a started service behind the HTTP handler", t, func() {
		ctx := context.Background()
		cfg := testConfig()
		cfg.CORSAllowedOrigins = []string{"https://play.example"}
		res, err := buildResources(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		defer res.close()

		svc, err := newService(cfg, res, logger.Get())
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		srv := httptest.NewServer(newHandler(ctx, cfg, svc))
		defer srv.Close()

		convey.Convey("Then a score can be submitted and read back", func() {
			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/leaderboard/games/space-race/leaderboard",
				bytes.NewBufferString(`{"score": 42}`))
			req.Header.Set(api.HeaderUserID, "alice")
			resp, err := http.DefaultClient.Do(req)
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusCreated)

			resp, err = http.Get(srv.URL + "/leaderboard/games/space-race/leaderboard")
			convey.So(err, convey.ShouldBeNil)
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			convey.So(string(body), convey.ShouldContainSubstring, `"userId":"alice"`)
		})

		convey.Convey("Then the API reference is served", func() {
			resp, err := http.Get(srv.URL + "/openapi.yaml")
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then CORS preflight honours the allowed origins", func() {
			req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/leaderboard/global", nil)
			req.Header.Set("Origin", "https://play.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			resp, err := http.DefaultClient.Do(req)
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.Header.Get("Access-Control-Allow-Origin"), convey.ShouldEqual, "https://play.example")

			req.Header.Set("Origin", "https://evil.example")
			resp, err = http.DefaultClient.Do(req)
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.Header.Get("Access-Control-Allow-Origin"), convey.ShouldBeEmpty)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metrics updaters", t, func() {
		svcCfg := testConfig()
		res, err := buildResources(context.Background(), svcCfg)
		convey.So(err, convey.ShouldBeNil)
		defer res.close()
		svc, err := newService(svcCfg, res, logger.Get())
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then they return when the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then single updates do not panic on a stopped service", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(context.Background(), svc) }, convey.ShouldNotPanic)
		})
	})
}

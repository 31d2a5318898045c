package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/playrank/internal/adapters/gateway"
	"github.com/okian/playrank/internal/adapters/http/api"
	service "github.com/okian/playrank/internal/app"
	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newRouter(deps api.Dependencies, stats api.StatsProvider) *mux.Router {
	r := mux.NewRouter()
	api.NewServer(deps, stats).Register(context.Background(), r)
	return r
}

func newService() *service.Service {
	dir := gateway.NewDirectory()
	dir.AddGame(model.GameSummary{ID: "g1", Title: "Space Race", Category: "arcade"})
	dir.AddUser(model.UserSummary{ID: "alice", Username: "alice", FullName: "Alice Adams"})
	dir.AddUser(model.UserSummary{ID: "bob", Username: "bob"})
	svc := service.New(service.WithCatalog(dir), service.WithIdentity(dir))
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	return svc
}

type request struct {
	method string
	path   string
	body   string
	user   string
	role   string
}

func do(r http.Handler, req request) *httptest.ResponseRecorder {
	hr := httptest.NewRequest(req.method, req.path, strings.NewReader(req.body))
	if req.user != "" {
		hr.Header.Set(api.HeaderUserID, req.user)
	}
	if req.role != "" {
		hr.Header.Set(api.HeaderUserRole, req.role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, hr)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type submitBody struct {
	Status      string `json:"status"`
	Duplicate   bool   `json:"duplicate"`
	Leaderboard struct {
		GameID  string              `json:"gameId"`
		Entries []model.RankedEntry `json:"entries"`
		Version uint64              `json:"version"`
	} `json:"leaderboard"`
}

const submitPath = "/leaderboard/games/g1/leaderboard"

func TestServer_SubmitAndRead(t *testing.T) {
	Convey("Given the API over a started service", t, func() {
		svc := newService()
		r := newRouter(svc, svc)
		Reset(func() { _ = svc.Stop(context.Background()) })

		Convey("Submitting without identity is unauthorized", func() {
			w := do(r, request{method: http.MethodPost, path: submitPath, body: `{"score":10}`})
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			var e errorBody
			decode(w, &e)
			So(e.Code, ShouldEqual, "unauthorized")
		})

		Convey("A first score is created with 201", func() {
			w := do(r, request{method: http.MethodPost, path: submitPath, body: `{"score":100}`, user: "alice"})
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Header().Get(api.HeaderRequestID), ShouldNotBeEmpty)
			var body submitBody
			decode(w, &body)
			So(body.Status, ShouldEqual, "applied")
			So(body.Leaderboard.GameID, ShouldEqual, "g1")
			So(body.Leaderboard.Entries, ShouldHaveLength, 1)
			So(body.Leaderboard.Entries[0].Rank, ShouldEqual, 1)

			Convey("A lower score is reported unchanged with 200", func() {
				w := do(r, request{method: http.MethodPost, path: submitPath, body: `{"score":50}`, user: "alice"})
				So(w.Code, ShouldEqual, http.StatusOK)
				var again submitBody
				decode(w, &again)
				So(again.Status, ShouldEqual, "unchanged")
				So(again.Leaderboard.Version, ShouldEqual, body.Leaderboard.Version)
			})

			Convey("The leaderboard shows the caller's own rank", func() {
				do(r, request{method: http.MethodPost, path: submitPath, body: `{"score":150}`, user: "bob"})
				w := do(r, request{method: http.MethodGet, path: submitPath, user: "alice"})
				So(w.Code, ShouldEqual, http.StatusOK)
				var view model.LeaderboardView
				decode(w, &view)
				So(view.Game.Title, ShouldEqual, "Space Race")
				So(view.Entries, ShouldHaveLength, 2)
				So(view.Entries[0].UserID, ShouldEqual, "bob")
				So(view.TotalEntries, ShouldEqual, 2)
				So(view.UserRank, ShouldNotBeNil)
				So(view.UserRank.Position, ShouldEqual, 2)
			})

			Convey("The caller's ranks are listed", func() {
				w := do(r, request{method: http.MethodGet, path: "/leaderboard/users/ranks", user: "alice"})
				So(w.Code, ShouldEqual, http.StatusOK)
				var ranks []model.UserRank
				decode(w, &ranks)
				So(ranks, ShouldHaveLength, 1)
				So(ranks[0].Game.ID, ShouldEqual, "g1")
				So(ranks[0].Percentile, ShouldEqual, 1.0)
			})

			Convey("The global ranking includes full names", func() {
				w := do(r, request{method: http.MethodGet, path: "/leaderboard/global?limit=5"})
				So(w.Code, ShouldEqual, http.StatusOK)
				var rows []model.GlobalRanking
				decode(w, &rows)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].FullName, ShouldEqual, "Alice Adams")
				So(rows[0].Rank, ShouldEqual, 1)
			})
		})

		Convey("A repeated submission id is acknowledged as a duplicate", func() {
			payload := `{"score":10,"submissionId":"abc"}`
			So(do(r, request{method: http.MethodPost, path: submitPath, body: payload, user: "bob"}).Code, ShouldEqual, http.StatusCreated)
			w := do(r, request{method: http.MethodPost, path: submitPath, body: payload, user: "bob"})
			So(w.Code, ShouldEqual, http.StatusOK)
			var body submitBody
			decode(w, &body)
			So(body.Duplicate, ShouldBeTrue)
			So(body.Status, ShouldEqual, "duplicate")
		})

		Convey("Invalid input is a validation error", func() {
			for _, payload := range []string{`not json`, `{}`, `{"score":1,"timeframe":"yearly"}`} {
				w := do(r, request{method: http.MethodPost, path: submitPath, body: payload, user: "alice"})
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				var e errorBody
				decode(w, &e)
				So(e.Code, ShouldEqual, "validation_error")
			}
		})

		Convey("Unknown games and users are 404 with distinct codes", func() {
			w := do(r, request{method: http.MethodPost, path: "/leaderboard/games/nope/leaderboard", body: `{"score":1}`, user: "alice"})
			So(w.Code, ShouldEqual, http.StatusNotFound)
			var e errorBody
			decode(w, &e)
			So(e.Code, ShouldEqual, "game_not_found")

			w = do(r, request{method: http.MethodPost, path: submitPath, body: `{"score":1}`, user: "ghost"})
			So(w.Code, ShouldEqual, http.StatusNotFound)
			decode(w, &e)
			So(e.Code, ShouldEqual, "user_not_found")
		})

		Convey("An empty leaderboard is 200 with no entries", func() {
			w := do(r, request{method: http.MethodGet, path: submitPath + "?timeframe=weekly"})
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"entries":[]`)
			So(w.Body.String(), ShouldContainSubstring, `"totalEntries":0`)
		})

		Convey("Explicit limits below one are rejected", func() {
			for _, q := range []string{"0", "-3", "ten"} {
				w := do(r, request{method: http.MethodGet, path: submitPath + "?limit=" + q})
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				w = do(r, request{method: http.MethodGet, path: "/leaderboard/global?limit=" + q})
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("Another user's ranks require self or admin", func() {
			path := "/leaderboard/users/alice/ranks"
			So(do(r, request{method: http.MethodGet, path: path}).Code, ShouldEqual, http.StatusUnauthorized)
			So(do(r, request{method: http.MethodGet, path: path, user: "bob"}).Code, ShouldEqual, http.StatusForbidden)
			So(do(r, request{method: http.MethodGet, path: path, user: "alice"}).Code, ShouldEqual, http.StatusOK)
			So(do(r, request{method: http.MethodGet, path: path, user: "root", role: "admin"}).Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestServer_Admin(t *testing.T) {
	Convey("Given a leaderboard with two entries", t, func() {
		svc := newService()
		r := newRouter(svc, svc)
		Reset(func() { _ = svc.Stop(context.Background()) })
		do(r, request{method: http.MethodPost, path: submitPath, body: `{"score":100}`, user: "alice"})
		do(r, request{method: http.MethodPost, path: submitPath, body: `{"score":80}`, user: "bob"})

		Convey("Non-admins are rejected before any table access", func() {
			So(do(r, request{method: http.MethodDelete, path: submitPath}).Code, ShouldEqual, http.StatusUnauthorized)
			w := do(r, request{method: http.MethodDelete, path: submitPath, user: "alice"})
			So(w.Code, ShouldEqual, http.StatusForbidden)
			var e errorBody
			decode(w, &e)
			So(e.Code, ShouldEqual, "forbidden")

			w = do(r, request{method: http.MethodGet, path: submitPath})
			var view model.LeaderboardView
			decode(w, &view)
			So(view.Entries, ShouldHaveLength, 2)
		})

		Convey("An admin can remove one entry", func() {
			w := do(r, request{method: http.MethodDelete, path: submitPath + "/bob", user: "root", role: "admin"})
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "User removed from leaderboard successfully")

			w = do(r, request{method: http.MethodDelete, path: submitPath + "/bob", user: "root", role: "admin"})
			So(w.Code, ShouldEqual, http.StatusNotFound)
			var e errorBody
			decode(w, &e)
			So(e.Code, ShouldEqual, "entry_not_found")
		})

		Convey("An admin reset empties the table", func() {
			w := do(r, request{method: http.MethodDelete, path: submitPath, user: "root", role: "ADMIN"})
			So(w.Code, ShouldEqual, http.StatusOK)

			w = do(r, request{method: http.MethodGet, path: submitPath})
			var view model.LeaderboardView
			decode(w, &view)
			So(view.Entries, ShouldBeEmpty)
			So(view.LastUpdated, ShouldNotBeNil)
		})

		Convey("Resetting a table that never existed is not found", func() {
			w := do(r, request{method: http.MethodDelete, path: submitPath + "?timeframe=daily", user: "root", role: "admin"})
			So(w.Code, ShouldEqual, http.StatusNotFound)
			var e errorBody
			decode(w, &e)
			So(e.Code, ShouldEqual, "leaderboard_not_found")
		})
	})
}

// stubDeps fails every call with err.
type stubDeps struct {
	err error
}

func (s stubDeps) Submit(context.Context, model.Submission) (model.SubmitResult, error) {
	return model.SubmitResult{}, s.err
}

func (s stubDeps) Leaderboard(context.Context, model.LeaderboardQuery) (model.LeaderboardView, error) {
	return model.LeaderboardView{}, s.err
}

func (s stubDeps) RanksForUser(context.Context, string) ([]model.UserRank, error) {
	return nil, s.err
}

func (s stubDeps) GlobalRankings(context.Context, int) ([]model.GlobalRanking, error) {
	return nil, s.err
}

func (s stubDeps) Reset(context.Context, string, string) (model.Table, error) {
	return model.Table{}, s.err
}

func (s stubDeps) RemoveUser(context.Context, string, string, string) (model.Table, error) {
	return model.Table{}, s.err
}

type stubStats map[string]any

func (s stubStats) GetStats(context.Context) map[string]any { return s }

func TestServer_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("submit: %w", model.ErrConflict), http.StatusServiceUnavailable, "conflict"},
		{fmt.Errorf("submit: %w: get_user: timeout", model.ErrCollaborator), http.StatusBadGateway, "collaborator_error"},
		{errors.New("pq: relation leaderboard_entries does not exist"), http.StatusInternalServerError, "internal_error"},
		{fmt.Errorf("submit: %w", model.ErrInvalidScore), http.StatusBadRequest, "validation_error"},
	}
	for _, tc := range cases {
		Convey(fmt.Sprintf("Given a dependency failing with %q", tc.err), t, func() {
			r := newRouter(stubDeps{err: tc.err}, stubStats{})
			w := do(r, request{method: http.MethodPost, path: submitPath, body: `{"score":1}`, user: "alice"})

			So(w.Code, ShouldEqual, tc.status)
			var e errorBody
			decode(w, &e)
			So(e.Code, ShouldEqual, tc.code)
			if tc.status >= http.StatusInternalServerError || tc.status == http.StatusBadGateway {
				So(e.Message, ShouldNotContainSubstring, "leaderboard_entries")
				So(e.Message, ShouldNotContainSubstring, "timeout")
			}
		})
	}
}

func TestServer_Operational(t *testing.T) {
	Convey("Given the API with a stats provider", t, func() {
		r := newRouter(stubDeps{}, stubStats{"started": true, "tables": 3})

		Convey("Stats are served as JSON", func() {
			w := do(r, request{method: http.MethodGet, path: "/stats"})
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")
			var stats map[string]any
			decode(w, &stats)
			So(stats["tables"], ShouldEqual, 3.0)
		})

		Convey("Health serves Prometheus metrics", func() {
			w := do(r, request{method: http.MethodGet, path: "/healthz"})
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "playrank_")
		})

		Convey("A supplied request id is echoed", func() {
			hr := httptest.NewRequest(http.MethodGet, "/stats", nil)
			hr.Header.Set(api.HeaderRequestID, "req-42")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, hr)
			So(w.Header().Get(api.HeaderRequestID), ShouldEqual, "req-42")
		})

		Convey("Unknown routes and methods use the error envelope", func() {
			w := do(r, request{method: http.MethodGet, path: "/nope"})
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(w.Body.String(), ShouldContainSubstring, `"code":"not_found"`)

			w = do(r, request{method: http.MethodPut, path: submitPath})
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

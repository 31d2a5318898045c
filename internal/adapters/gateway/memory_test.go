package gateway

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/playrank/internal/domain/model"
)

func TestDirectory(t *testing.T) {
	Convey("Given a directory with one game and one user", t, func() {
		ctx := context.Background()
		d := NewDirectory()
		d.AddGame(model.GameSummary{ID: "g1", Title: "Space Race"})
		d.AddUser(model.UserSummary{ID: "u1", Username: "ann", FullName: "Ann Lee", HighestScore: 50})

		Convey("Known ids resolve", func() {
			g, err := d.GetGame(ctx, "g1")
			So(err, ShouldBeNil)
			So(g.Title, ShouldEqual, "Space Race")

			u, err := d.GetUser(ctx, "u1")
			So(err, ShouldBeNil)
			So(u.FullName, ShouldEqual, "Ann Lee")
		})

		Convey("Unknown ids report not found", func() {
			_, err := d.GetGame(ctx, "nope")
			So(err, ShouldEqual, model.ErrGameNotFound)
			_, err = d.GetUser(ctx, "nope")
			So(err, ShouldEqual, model.ErrUserNotFound)
			So(d.TouchUserActivity(ctx, "nope", time.Now()), ShouldEqual, model.ErrUserNotFound)
		})

		Convey("Highest score only rises", func() {
			So(d.SetUserHighestScore(ctx, "u1", 30), ShouldBeNil)
			u, _ := d.GetUser(ctx, "u1")
			So(u.HighestScore, ShouldEqual, 50)

			So(d.SetUserHighestScore(ctx, "u1", 80), ShouldBeNil)
			u, _ = d.GetUser(ctx, "u1")
			So(u.HighestScore, ShouldEqual, 80)
		})

		Convey("Activity is recorded", func() {
			at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
			So(d.TouchUserActivity(ctx, "u1", at), ShouldBeNil)
			u, _ := d.GetUser(ctx, "u1")
			So(u.LastActive, ShouldEqual, at)
		})
	})
}

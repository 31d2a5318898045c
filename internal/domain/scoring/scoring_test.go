package scoring

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/playrank/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestNormalizer(t *testing.T) {
	convey.Convey("Given a default normalizer", t, func() {
		n := NewNormalizer()

		convey.Convey("Then it clamps negatives", func() {
			convey.So(n.Policy(), convey.ShouldEqual, ClampNegative)
			got, err := n.Normalize(-25)
			convey.So(err, convey.ShouldBeNil)
			convey.So(got, convey.ShouldEqual, 0)
		})

		convey.Convey("Then it accepts zero", func() {
			got, err := n.Normalize(0)
			convey.So(err, convey.ShouldBeNil)
			convey.So(got, convey.ShouldEqual, 0)
		})

		convey.Convey("Then it floors fractional scores", func() {
			got, err := n.Normalize(99.99)
			convey.So(err, convey.ShouldBeNil)
			convey.So(got, convey.ShouldEqual, 99)
		})

		convey.Convey("Then it rejects non-finite numbers", func() {
			for _, raw := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
				_, err := n.Normalize(raw)
				convey.So(errors.Is(err, model.ErrInvalidScore), convey.ShouldBeTrue)
				convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
			}
		})
	})

	convey.Convey("Given a rejecting normalizer with a cap", t, func() {
		n := NewNormalizer(WithNegativePolicy(RejectNegative), WithMaxScore(1000))

		convey.Convey("Then negatives are validation errors", func() {
			_, err := n.Normalize(-1)
			convey.So(errors.Is(err, model.ErrInvalidScore), convey.ShouldBeTrue)
		})

		convey.Convey("Then scores over the cap are rejected", func() {
			_, err := n.Normalize(1000.5)
			convey.So(err, convey.ShouldBeNil)
			_, err = n.Normalize(1001)
			convey.So(errors.Is(err, model.ErrInvalidScore), convey.ShouldBeTrue)
		})
	})
}

func TestParseNegativePolicy(t *testing.T) {
	convey.Convey("Given policy names", t, func() {
		p, err := ParseNegativePolicy("")
		convey.So(err, convey.ShouldBeNil)
		convey.So(p, convey.ShouldEqual, ClampNegative)

		p, err = ParseNegativePolicy(" Reject ")
		convey.So(err, convey.ShouldBeNil)
		convey.So(p, convey.ShouldEqual, RejectNegative)

		_, err = ParseNegativePolicy("ignore")
		convey.So(err, convey.ShouldNotBeNil)
	})
}

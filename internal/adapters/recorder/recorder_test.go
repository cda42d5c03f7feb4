package recorder_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/merchkit/stockcast/internal/adapters/recorder"
	"github.com/merchkit/stockcast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeDB captures the statement and bound arguments of each Exec.
type fakeDB struct {
	sql  string
	args []any
	err  error
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.sql = sql
	db.args = args
	return pgconn.CommandTag{}, db.err
}

func TestRecord(t *testing.T) {
	Convey("Given a recorder over a captured connection", t, func() {
		db := &fakeDB{}
		at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
		store := recorder.New(db, recorder.WithClock(func() time.Time { return at }))

		result := model.ItemResult{
			Index:    3,
			OK:       true,
			Score:    0.8,
			ItemID:   "item-A",
			Features: map[string]float64{"sales7d": 2},
			Raw:      model.RawPrediction{"score": 0.8},
		}

		Convey("When recording an item-scoped result", func() {
			err := store.Record(context.Background(), result, "v1.2")

			Convey("Then the bound arguments carry the item scope kind", func() {
				So(err, ShouldBeNil)
				So(db.args, ShouldHaveLength, 7)
				So(db.args[0], ShouldEqual, recorder.ScopeItem)
				So(db.args[1], ShouldEqual, "item-A")
				So(db.args[2], ShouldBeNil)
				So(db.args[5], ShouldEqual, "v1.2")
				So(db.args[6], ShouldResemble, at)
			})

			Convey("And features and prediction are encoded as JSON", func() {
				var features map[string]float64
				So(json.Unmarshal(db.args[3].([]byte), &features), ShouldBeNil)
				So(features, ShouldResemble, map[string]float64{"sales7d": 2})

				var prediction map[string]any
				So(json.Unmarshal(db.args[4].([]byte), &prediction), ShouldBeNil)
				So(prediction["score"], ShouldEqual, 0.8)
			})
		})

		Convey("When recording a scope-scoped result", func() {
			result.ScopeID = "store-1"
			err := store.Record(context.Background(), result, "")

			Convey("Then the scope kind and scope id are bound", func() {
				So(err, ShouldBeNil)
				So(db.args[0], ShouldEqual, recorder.ScopeScope)
				So(*(db.args[2].(*string)), ShouldEqual, "store-1")
			})
		})

		Convey("When the insert fails", func() {
			db.err = errors.New("connection reset")

			err := store.Record(context.Background(), result, "v1.2")

			Convey("Then the error names the item", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "item-A")
			})
		})
	})
}

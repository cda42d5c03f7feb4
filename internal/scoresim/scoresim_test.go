package scoresim_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/merchkit/stockcast/internal/adapters/transport"
	"github.com/merchkit/stockcast/internal/domain/dispatch"
	"github.com/merchkit/stockcast/internal/domain/model"
	"github.com/merchkit/stockcast/internal/scoresim"
	"github.com/merchkit/stockcast/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	logger.Init()
}

func TestModelScoring(t *testing.T) {
	Convey("Given the deterministic model", t, func() {
		m := scoresim.NewModel()

		Convey("The same vector always scores the same", func() {
			features := map[string]float64{
				"sales7d_per_day":    3.5,
				"inventory_qty":      4,
				"days_since_restock": 20,
			}
			So(m.Score(features), ShouldEqual, m.Score(features))
		})

		Convey("A fast seller with thin stock scores higher than a slow one with deep stock", func() {
			risky := m.Score(map[string]float64{
				"sales7d_per_day":    5,
				"inventory_qty":      2,
				"days_since_restock": 100,
			})
			safe := m.Score(map[string]float64{
				"sales7d_per_day":    0.1,
				"inventory_qty":      500,
				"days_since_restock": 1,
			})
			So(risky, ShouldBeGreaterThan, safe)
			So(risky, ShouldBeBetweenOrEqual, 0, 1)
			So(safe, ShouldBeBetweenOrEqual, 0, 1)
		})

		Convey("Labels follow the thresholds", func() {
			So(scoresim.Label(0.9), ShouldEqual, "high")
			So(scoresim.Label(0.5), ShouldEqual, "medium")
			So(scoresim.Label(0.1), ShouldEqual, "low")
		})
	})
}

func TestHandlerRoundTrip(t *testing.T) {
	Convey("Given a scoresim server behind the direct transport", t, func() {
		handler := scoresim.NewHandler(scoresim.NewModel(), scoresim.WithAuthToken("token-1"))
		server := httptest.NewServer(handler)
		defer server.Close()

		d := dispatch.New(
			transport.NewDirect(server.URL, transport.WithAuthToken("token-1")),
			dispatch.WithChunkSize(10),
		)

		rows := []model.NormalizedRow{
			{Index: 0, ItemID: "item-A", Features: map[string]float64{
				"sales7dPerDay": 5, "inventoryQty": 2, "daysSinceRestock": 100,
			}},
			{Index: 1, ItemID: "item-B", Features: map[string]float64{
				"sales7dPerDay": 0.1, "inventoryQty": 500, "daysSinceRestock": 1,
			}},
		}

		Convey("When dispatching a chunk", func() {
			predictions, err := d.Dispatch(context.Background(), dispatch.Chunk{StartIndex: 0, Rows: rows})

			Convey("Then one internal-cased prediction comes back per row", func() {
				So(err, ShouldBeNil)
				So(predictions, ShouldHaveLength, 2)
				So(predictions[0]["score"], ShouldBeGreaterThan, predictions[1]["score"])
				So(predictions[0]["modelVersion"], ShouldEqual, "scoresim-1")
				So(predictions[0]["label"], ShouldNotBeEmpty)
			})
		})

		Convey("When the token is wrong", func() {
			bad := dispatch.New(transport.NewDirect(server.URL, transport.WithAuthToken("wrong")))
			_, err := bad.Dispatch(context.Background(), dispatch.Chunk{Rows: rows})

			Convey("Then the call fails as unreachable", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

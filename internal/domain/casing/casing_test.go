package casing_test

import (
	"testing"

	"github.com/merchkit/stockcast/internal/domain/casing"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKeyConversion(t *testing.T) {
	Convey("Given camelCase keys from the feature schema", t, func() {
		cases := map[string]string{
			"itemId":          "item_id",
			"scopeId":         "scope_id",
			"sales7d":         "sales7d",
			"sales7dPerDay":   "sales7d_per_day",
			"salesRatio7To30": "sales_ratio7_to30",
			"viewToPurchase7d": "view_to_purchase7d",
			"isWeekend":       "is_weekend",
			"score":           "score",
		}

		Convey("When converting to snake_case", func() {
			for camel, snake := range cases {
				So(casing.CamelToSnake(camel), ShouldEqual, snake)
			}
		})

		Convey("When converting back to camelCase", func() {
			for camel, snake := range cases {
				So(casing.SnakeToCamel(snake), ShouldEqual, camel)
			}
		})
	})
}

func TestTreeTransform(t *testing.T) {
	Convey("Given a nested payload", t, func() {
		internal := map[string]any{
			"modelVersion": "v1.2",
			"rows": []any{
				map[string]any{
					"itemId":  "item-A",
					"scopeId": "store-1",
					"features": map[string]float64{
						"sales7d":       3,
						"avgPrice":      19.99,
						"sales7dPerDay": 0.4286,
					},
				},
			},
		}

		Convey("When rewriting to the wire convention", func() {
			wire := casing.ToWire(internal)

			m, ok := wire.(map[string]any)
			So(ok, ShouldBeTrue)
			So(m, ShouldContainKey, "model_version")
			So(m, ShouldNotContainKey, "modelVersion")

			rows, ok := m["rows"].([]any)
			So(ok, ShouldBeTrue)
			row, ok := rows[0].(map[string]any)
			So(ok, ShouldBeTrue)
			So(row, ShouldContainKey, "item_id")

			Convey("Then feature maps keep their numeric type", func() {
				features, ok := row["features"].(map[string]float64)
				So(ok, ShouldBeTrue)
				So(features["avg_price"], ShouldEqual, 19.99)
				So(features["sales7d_per_day"], ShouldEqual, 0.4286)
			})

			Convey("And the transformation round-trips", func() {
				So(casing.ToInternal(wire), ShouldResemble, internal)
			})
		})

		Convey("When given a non-container value", func() {
			So(casing.ToWire("itemId"), ShouldEqual, "itemId")
			So(casing.ToWire(42), ShouldEqual, 42)
			So(casing.ToInternal(nil), ShouldBeNil)
		})
	})
}

func TestWireFeatures(t *testing.T) {
	Convey("Given a feature vector", t, func() {
		features := map[string]float64{"inventoryQty": 12, "daysSinceRestock": 3}

		Convey("When rewriting keys for the wire", func() {
			wire := casing.WireFeatures(features)

			So(wire, ShouldHaveLength, 2)
			So(wire["inventory_qty"], ShouldEqual, 12.0)
			So(wire["days_since_restock"], ShouldEqual, 3.0)
		})
	})
}

package batchgen_test

import (
	"testing"

	"github.com/merchkit/stockcast/internal/batchgen"
	"github.com/merchkit/stockcast/internal/domain/feature"
	"github.com/merchkit/stockcast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		g := batchgen.New(batchgen.WithSeed(7))

		Convey("When generating a batch", func() {
			items := g.Batch(200)

			Convey("Then every item is addressable", func() {
				So(items, ShouldHaveLength, 200)
				for _, item := range items {
					So(item.Addressable(), ShouldBeTrue)
				}
			})

			Convey("And all three shapes appear", func() {
				kinds := map[model.ItemKind]int{}
				for _, item := range items {
					kinds[item.Kind]++
				}
				So(kinds[model.KindIdentifier], ShouldBeGreaterThan, 0)
				So(kinds[model.KindIdentifierWithScope], ShouldBeGreaterThan, 0)
				So(kinds[model.KindPrebuilt], ShouldBeGreaterThan, 0)
			})

			Convey("And prebuilt rows carry the full feature schema", func() {
				for _, item := range items {
					if item.Kind != model.KindPrebuilt {
						continue
					}
					for _, name := range feature.Names() {
						_, ok := item.Features[name]
						So(ok, ShouldBeTrue)
					}
				}
			})
		})

		Convey("The same seed yields the same shape sequence", func() {
			a := batchgen.New(batchgen.WithSeed(7)).Batch(50)
			b := batchgen.New(batchgen.WithSeed(7)).Batch(50)
			for i := range a {
				So(a[i].Kind, ShouldEqual, b[i].Kind)
			}
		})
	})
}

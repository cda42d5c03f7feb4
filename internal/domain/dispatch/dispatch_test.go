package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/merchkit/stockcast/internal/domain/dispatch"
	"github.com/merchkit/stockcast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeTransport captures payloads and serves canned responses.
type fakeTransport struct {
	payloads [][]byte
	response []byte
	err      error
}

func (t *fakeTransport) Send(_ context.Context, payload []byte) ([]byte, error) {
	t.payloads = append(t.payloads, payload)
	if t.err != nil {
		return nil, t.err
	}
	return t.response, nil
}

func (t *fakeTransport) Name() string { return "fake" }

func makeRows(n int) []model.NormalizedRow {
	rows := make([]model.NormalizedRow, n)
	for i := range rows {
		rows[i] = model.NormalizedRow{
			Index:    i,
			ItemID:   fmt.Sprintf("item-%d", i),
			Features: map[string]float64{"sales7d": float64(i)},
		}
	}
	return rows
}

func TestChunking(t *testing.T) {
	Convey("Given a dispatcher with chunk size 50", t, func() {
		d := dispatch.New(&fakeTransport{}, dispatch.WithChunkSize(50))

		Convey("When splitting 120 rows", func() {
			chunks := d.Chunks(makeRows(120))

			Convey("Then three chunks cover the batch in order", func() {
				So(chunks, ShouldHaveLength, 3)
				So(chunks[0].StartIndex, ShouldEqual, 0)
				So(chunks[0].Rows, ShouldHaveLength, 50)
				So(chunks[1].StartIndex, ShouldEqual, 50)
				So(chunks[1].Rows, ShouldHaveLength, 50)
				So(chunks[2].StartIndex, ShouldEqual, 100)
				So(chunks[2].Rows, ShouldHaveLength, 20)
			})
		})

		Convey("When splitting fewer rows than one chunk", func() {
			chunks := d.Chunks(makeRows(3))
			So(chunks, ShouldHaveLength, 1)
			So(chunks[0].Rows, ShouldHaveLength, 3)
		})

		Convey("When splitting no rows", func() {
			So(d.Chunks(nil), ShouldHaveLength, 0)
		})
	})
}

func TestDispatchEncoding(t *testing.T) {
	Convey("Given a dispatcher with a model version", t, func() {
		transport := &fakeTransport{response: []byte(`{"results":[]}`)}
		d := dispatch.New(transport, dispatch.WithModelVersion("v1.2"))

		rows := []model.NormalizedRow{
			{Index: 0, ItemID: "item-A", ScopeID: "store-1", Features: map[string]float64{"avgPrice": 19.99}},
			{Index: 1, ItemID: "item-B"},
		}

		Convey("When dispatching a chunk", func() {
			_, err := d.Dispatch(context.Background(), dispatch.Chunk{StartIndex: 0, Rows: rows})
			So(err, ShouldBeNil)
			So(transport.payloads, ShouldHaveLength, 1)

			var wire map[string]any
			So(json.Unmarshal(transport.payloads[0], &wire), ShouldBeNil)

			Convey("Then the payload uses the wire naming convention", func() {
				So(wire, ShouldContainKey, "model_version")
				So(wire["model_version"], ShouldEqual, "v1.2")

				wireRows := wire["rows"].([]any)
				So(wireRows, ShouldHaveLength, 2)

				first := wireRows[0].(map[string]any)
				So(first["item_id"], ShouldEqual, "item-A")
				So(first["scope_id"], ShouldEqual, "store-1")
				So(first["features"].(map[string]any)["avg_price"], ShouldEqual, 19.99)
			})

			Convey("And rows without a scope carry a null scope", func() {
				second := decodeRows(t, transport.payloads[0])[1]
				So(second["scope_id"], ShouldBeNil)
				So(second["features"], ShouldResemble, map[string]any{})
			})
		})
	})
}

func decodeRows(t *testing.T, payload []byte) []map[string]any {
	t.Helper()
	var wire struct {
		Rows []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return wire.Rows
}

func TestDispatchDecoding(t *testing.T) {
	Convey("Given a scoring response in the wire convention", t, func() {
		transport := &fakeTransport{response: []byte(
			`{"results":[{"score":0.9,"label":"high","model_version":"v1.2"},{"probability":0.5}]}`,
		)}
		d := dispatch.New(transport)

		Convey("When dispatching", func() {
			predictions, err := d.Dispatch(context.Background(), dispatch.Chunk{Rows: makeRows(2)})
			So(err, ShouldBeNil)

			Convey("Then predictions come back internal-cased in order", func() {
				So(predictions, ShouldHaveLength, 2)
				So(predictions[0]["score"], ShouldEqual, 0.9)
				So(predictions[0]["modelVersion"], ShouldEqual, "v1.2")
				So(predictions[1]["probability"], ShouldEqual, 0.5)
			})
		})
	})

	Convey("Given a response without a results list", t, func() {
		transport := &fakeTransport{response: []byte(`{"status":"ok"}`)}
		d := dispatch.New(transport)

		Convey("When dispatching", func() {
			predictions, err := d.Dispatch(context.Background(), dispatch.Chunk{Rows: makeRows(2)})

			Convey("Then an empty prediction list is returned", func() {
				So(err, ShouldBeNil)
				So(predictions, ShouldHaveLength, 0)
			})
		})
	})

	Convey("Given a malformed response body", t, func() {
		transport := &fakeTransport{response: []byte(`not json`)}
		d := dispatch.New(transport)

		Convey("When dispatching", func() {
			_, err := d.Dispatch(context.Background(), dispatch.Chunk{Rows: makeRows(1)})

			Convey("Then a malformed transport error surfaces", func() {
				var terr *dispatch.TransportError
				So(errors.As(err, &terr), ShouldBeTrue)
				So(terr.Kind, ShouldEqual, dispatch.KindMalformed)
			})
		})
	})
}

func TestDispatchTransportFailure(t *testing.T) {
	Convey("Given a transport that fails", t, func() {
		transport := &fakeTransport{err: &dispatch.TransportError{
			Kind: dispatch.KindTimeout,
			Err:  errors.New("deadline exceeded"),
		}}
		d := dispatch.New(transport)

		Convey("When dispatching", func() {
			predictions, err := d.Dispatch(context.Background(), dispatch.Chunk{Rows: makeRows(3)})

			Convey("Then the failure surfaces untouched", func() {
				So(predictions, ShouldBeNil)
				var terr *dispatch.TransportError
				So(errors.As(err, &terr), ShouldBeTrue)
				So(terr.Kind, ShouldEqual, dispatch.KindTimeout)
			})
		})
	})
}

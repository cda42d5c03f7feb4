package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/merchkit/stockcast/internal/adapters/audit"
	"github.com/merchkit/stockcast/internal/adapters/usagelog"
	service "github.com/merchkit/stockcast/internal/app"
	"github.com/merchkit/stockcast/internal/domain/dispatch"
	"github.com/merchkit/stockcast/internal/domain/feature"
	"github.com/merchkit/stockcast/internal/domain/model"
	"github.com/merchkit/stockcast/internal/domain/normalize"
	"github.com/merchkit/stockcast/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	logger.Init()
}

// fakeBuilder returns a one-feature vector per item and records calls.
type fakeBuilder struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]bool
}

func (b *fakeBuilder) Build(_ context.Context, itemID, scopeID string) (feature.Vector, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.failFor[itemID] {
		return nil, fmt.Errorf("no stats for %s", itemID)
	}
	return feature.Vector{"sales7d": 1}, nil
}

// fakeTransport decodes each wire payload and answers with one score
// per row. Calls are counted so tests can fail specific chunks.
type fakeTransport struct {
	mu       sync.Mutex
	calls    int
	failCall int                // 1-based call number to fail, 0 for never
	scores   map[string]float64 // by item_id; absent items score 0.5
	onCall   func(call int)
}

func (t *fakeTransport) Name() string { return "fake" }

func (t *fakeTransport) Send(_ context.Context, payload []byte) ([]byte, error) {
	t.mu.Lock()
	t.calls++
	call := t.calls
	t.mu.Unlock()

	if t.onCall != nil {
		t.onCall(call)
	}
	if t.failCall != 0 && call == t.failCall {
		return nil, &dispatch.TransportError{Kind: dispatch.KindUnreachable, Err: errors.New("connection refused")}
	}

	var request struct {
		Rows []struct {
			ItemID string `json:"item_id"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(payload, &request); err != nil {
		return nil, err
	}

	results := make([]map[string]any, len(request.Rows))
	for i, row := range request.Rows {
		score := 0.5
		if s, ok := t.scores[row.ItemID]; ok {
			score = s
		}
		results[i] = map[string]any{"score": score}
	}
	return json.Marshal(map[string]any{"results": results})
}

func newService(transport dispatch.Transport, builder normalize.Builder, chunkSize int, opts ...service.Option) *service.Service {
	normalizer := normalize.New(builder)
	dispatcher := dispatch.New(transport, dispatch.WithChunkSize(chunkSize))
	return service.New(normalizer, dispatcher, opts...)
}

func identifiers(n int) []model.InputItem {
	items := make([]model.InputItem, n)
	for i := range items {
		items[i] = model.Identifier(fmt.Sprintf("item-%03d", i))
	}
	return items
}

func TestPredictAlignment(t *testing.T) {
	Convey("Given a batch larger than one chunk", t, func() {
		transport := &fakeTransport{}
		svc := newService(transport, &fakeBuilder{}, 50)
		items := identifiers(120)

		Convey("When predicting", func() {
			results, err := svc.Predict(context.Background(), items)

			Convey("Then every item gets a result at its own index", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 120)
				for i, res := range results {
					So(res.Index, ShouldEqual, i)
					So(res.OK, ShouldBeTrue)
					So(res.ItemID, ShouldEqual, fmt.Sprintf("item-%03d", i))
				}
			})

			Convey("And the batch went out in three chunks", func() {
				So(transport.calls, ShouldEqual, 3)
			})
		})
	})
}

func TestChunkIsolation(t *testing.T) {
	Convey("Given a transport that fails the second chunk", t, func() {
		transport := &fakeTransport{failCall: 2}
		svc := newService(transport, &fakeBuilder{}, 50)
		items := identifiers(120)

		Convey("When predicting", func() {
			results, err := svc.Predict(context.Background(), items)

			Convey("Then only the failed chunk's rows become errors", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 120)
				for i := 0; i < 50; i++ {
					So(results[i].OK, ShouldBeTrue)
				}
				for i := 50; i < 100; i++ {
					So(results[i].OK, ShouldBeFalse)
					So(results[i].Reason, ShouldStartWith, "predictor_call_error: ")
				}
				for i := 100; i < 120; i++ {
					So(results[i].OK, ShouldBeTrue)
				}
			})
		})
	})
}

func TestItemLevelIsolation(t *testing.T) {
	Convey("Given one item whose features cannot be built", t, func() {
		transport := &fakeTransport{}
		builder := &fakeBuilder{failFor: map[string]bool{"item-001": true}}
		svc := newService(transport, builder, 50)

		Convey("When predicting", func() {
			results, err := svc.Predict(context.Background(), identifiers(3))

			Convey("Then only that item fails, with a feature build reason", func() {
				So(err, ShouldBeNil)
				So(results[0].OK, ShouldBeTrue)
				So(results[1].OK, ShouldBeFalse)
				So(results[1].Reason, ShouldStartWith, "feature_build_error: ")
				So(results[2].OK, ShouldBeTrue)
			})
		})
	})
}

func TestBatchValidation(t *testing.T) {
	Convey("Given invalid batches", t, func() {
		transport := &fakeTransport{}
		svc := newService(transport, &fakeBuilder{}, 50)

		check := func(items []model.InputItem) error {
			_, err := svc.Predict(context.Background(), items)
			return err
		}

		Convey("An empty batch is rejected", func() {
			err := check(nil)
			var verr *service.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
		})

		Convey("An oversized batch is rejected", func() {
			err := check(identifiers(1001))
			var verr *service.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "1001")
		})

		Convey("A non-addressable item rejects the whole batch", func() {
			items := []model.InputItem{model.Identifier("item-A"), {Kind: model.KindUnknown}}
			err := check(items)
			var verr *service.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
		})

		Convey("And no scoring call is ever made", func() {
			_ = check(nil)
			_ = check(identifiers(1001))
			So(transport.calls, ShouldEqual, 0)
		})
	})
}

func TestMixedShapeScenario(t *testing.T) {
	Convey("Given the three input shapes in one batch", t, func() {
		transport := &fakeTransport{scores: map[string]float64{
			"item-A": 0.9,
			"item-B": 0.5,
			"":       0.1, // the prebuilt row has no identifier
		}}
		builder := &fakeBuilder{}
		svc := newService(transport, builder, 50)

		items := []model.InputItem{
			model.Identifier("item-A"),
			model.IdentifierWithScope("item-B", "store-1"),
			model.Prebuilt("", "", map[string]float64{"f1": 1}),
		}

		Convey("When predicting", func() {
			results, err := svc.Predict(context.Background(), items)

			Convey("Then labels follow the thresholds", func() {
				So(err, ShouldBeNil)
				So(results[0].Label, ShouldEqual, "high")
				So(results[1].Label, ShouldEqual, "medium")
				So(results[2].Label, ShouldEqual, "low")
			})

			Convey("And the prebuilt row never hits the builder", func() {
				So(builder.calls, ShouldEqual, 2)
			})

			Convey("And the scoped row keeps its scope", func() {
				So(results[1].ScopeID, ShouldEqual, "store-1")
			})
		})
	})
}

// capturingRecorder records calls and optionally fails.
type capturingRecorder struct {
	mu       sync.Mutex
	recorded []model.ItemResult
	fail     bool
}

func (r *capturingRecorder) Record(_ context.Context, result model.ItemResult, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("insert failed")
	}
	r.recorded = append(r.recorded, result)
	return nil
}

type capturingUsage struct {
	entries []usagelog.Entry
}

func (u *capturingUsage) Append(_ context.Context, entry usagelog.Entry) {
	u.entries = append(u.entries, entry)
}

type capturingAudit struct {
	records []audit.Record
}

func (a *capturingAudit) Append(_ context.Context, record audit.Record) error {
	a.records = append(a.records, record)
	return nil
}

func TestPredictAndPersist(t *testing.T) {
	Convey("Given a service with all side channels", t, func() {
		transport := &fakeTransport{}
		recorder := &capturingRecorder{}
		usage := &capturingUsage{}
		auditor := &capturingAudit{}
		builder := &fakeBuilder{failFor: map[string]bool{"item-002": true}}

		normalizer := normalize.New(builder)
		dispatcher := dispatch.New(transport, dispatch.WithChunkSize(50))
		svc := service.New(normalizer, dispatcher,
			service.WithRecorder(recorder),
			service.WithUsageLog(usage),
			service.WithAuditStore(auditor),
			service.WithTenant("tenant-7"),
			service.WithModelVersion("v1.2"),
		)

		Convey("When persisting a batch with one failed item", func() {
			results, err := svc.PredictAndPersist(context.Background(), identifiers(4))

			Convey("Then only successes reach the recorder", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 4)
				So(recorder.recorded, ShouldHaveLength, 3)
			})

			Convey("And the usage entry carries the batch accounting", func() {
				So(usage.entries, ShouldHaveLength, 1)
				entry := usage.entries[0]
				So(entry.TenantID, ShouldEqual, "tenant-7")
				So(entry.ItemCount, ShouldEqual, 4)
				So(entry.SuccessCount, ShouldEqual, 3)
				So(entry.FailureCount, ShouldEqual, 1)
				So(entry.Transport, ShouldEqual, "fake")
				So(entry.BatchID, ShouldNotBeEmpty)
			})

			Convey("And the audit record matches", func() {
				So(auditor.records, ShouldHaveLength, 1)
				So(auditor.records[0].SuccessCount, ShouldEqual, 3)
				So(auditor.records[0].ModelVersion, ShouldEqual, "v1.2")
			})
		})

		Convey("When the recorder fails", func() {
			recorder.fail = true

			results, err := svc.PredictAndPersist(context.Background(), identifiers(2))

			Convey("Then the batch still succeeds", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 2)
				So(results[0].OK, ShouldBeTrue)
			})
		})
	})
}

func TestCancellationMidBatch(t *testing.T) {
	Convey("Given a context cancelled after the first chunk", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		transport := &fakeTransport{}
		transport.onCall = func(call int) {
			if call == 1 {
				cancel()
			}
		}
		svc := newService(transport, &fakeBuilder{}, 50)

		Convey("When predicting three chunks", func() {
			results, err := svc.Predict(ctx, identifiers(120))

			Convey("Then undispatched chunks come back cancelled", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 120)
				So(transport.calls, ShouldEqual, 1)
				for i := 0; i < 50; i++ {
					So(results[i].OK, ShouldBeTrue)
				}
				for i := 50; i < 120; i++ {
					So(results[i].OK, ShouldBeFalse)
					So(results[i].Reason, ShouldEqual, "cancelled")
				}
			})
		})
	})
}

func TestValidationIsTheOnlyErrorClass(t *testing.T) {
	Convey("Given a transport that fails every chunk", t, func() {
		transport := &fakeTransport{failCall: 1}
		svc := newService(transport, &fakeBuilder{}, 50)

		Convey("When predicting a valid batch", func() {
			results, err := svc.Predict(context.Background(), identifiers(2))

			Convey("Then transport trouble never surfaces as a batch error", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 2)
				So(results[0].OK, ShouldBeFalse)
			})
		})
	})
}

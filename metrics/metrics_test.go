package metrics

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/Noofbiz/sceneforecast/eval"
)

func TestManager(t *testing.T) {
	Convey("Given a metrics manager on its own registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(WithRegistry(registry), WithNamespace("test"), WithHistogramBuckets([]float64{0.1, 1}))

		So(m.Registry(), ShouldEqual, registry)

		Convey("When predictions are observed", func() {
			m.ObservePrediction("cvh", 20*time.Millisecond)
			m.ObservePrediction("cvh", 30*time.Millisecond)
			m.ObservePrediction("knn", time.Millisecond)

			Convey("Then the counters are labelled by model", func() {
				So(testutil.ToFloat64(m.predictions.WithLabelValues("cvh")), ShouldEqual, 2)
				So(testutil.ToFloat64(m.predictions.WithLabelValues("knn")), ShouldEqual, 1)
			})
		})

		Convey("When validation fails", func() {
			m.RecordValidationFailure("too_many_modes")

			Convey("Then the reason is counted", func() {
				So(testutil.ToFloat64(m.validationFailures.WithLabelValues("too_many_modes")), ShouldEqual, 1)
			})
		})

		Convey("When an evaluation summary is recorded", func() {
			m.RecordSummary(eval.Summary{
				MinADE:   map[int]float64{1: 1.5, 5: 0.7},
				MinFDE:   map[int]float64{1: 3},
				MissRate: map[int]float64{5: 0.25},
			})

			Convey("Then the gauges hold the values", func() {
				So(testutil.ToFloat64(m.evalMetric.WithLabelValues("min_ade", "5")), ShouldEqual, 0.7)
				So(testutil.ToFloat64(m.evalMetric.WithLabelValues("miss_rate", "5")), ShouldEqual, 0.25)
			})

			Convey("And the handler exposes them", func() {
				rec := httptest.NewRecorder()
				m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
				So(rec.Code, ShouldEqual, 200)
				So(rec.Body.String(), ShouldContainSubstring, `test_eval_metric{k="1",metric="min_fde"} 3`)
			})

			Convey("And the textfile contains them", func() {
				path := filepath.Join(t.TempDir(), "sceneforecast.prom")
				So(m.WriteTextfile(path), ShouldBeNil)
				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(strings.Contains(string(data), "test_eval_metric"), ShouldBeTrue)
			})
		})
	})
}

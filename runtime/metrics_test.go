package runtime

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gomlx/go-edgeml/model"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *metrics
	m.predictOK(time.Millisecond)
	m.predictFailed()
	m.cacheHit()
	m.cacheMiss()
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	acc := &stubAccel{}
	rt := New(acc, WithCacheDir(t.TempDir()), WithMetrics(reg))
	src := ModelPackage(savePackage(t, "metered"))

	sess, err := rt.OpenSession(src)
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	defer sess.Close()
	if err := sess.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := testutil.ToFloat64(rt.metrics.cacheLookups.WithLabelValues("miss")); got != 1 {
		t.Errorf("cache miss count = %v, want 1", got)
	}

	err = sess.Predict(
		[]Input{float32Input("x", []int64{2}, []float32{1, 2})},
		[]model.FeatureSpec{{Name: "x", DType: model.Float32, Shape: []int64{2}}},
		collectAlloc(map[string][]byte{}, map[string][]int64{}),
	)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if got := testutil.ToFloat64(rt.metrics.predictions.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok prediction count = %v, want 1", got)
	}

	// A second session against the same cached artifact is a hit.
	sess2, err := rt.OpenSession(src)
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	defer sess2.Close()
	if err := sess2.Load(); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if got := testutil.ToFloat64(rt.metrics.cacheLookups.WithLabelValues("hit")); got != 1 {
		t.Errorf("cache hit count = %v, want 1", got)
	}
}

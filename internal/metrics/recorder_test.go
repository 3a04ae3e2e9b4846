package metrics

import (
	"testing"

	"github.com/laminarci/laminar/internal/registry"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, r *Recorder) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := r.Registry().Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestRecorderReportsInfoAndUptime(t *testing.T) {
	r := NewRecorder("test-version", registry.New(), nil)
	families := gather(t, r)

	require.Contains(t, families, "laminar_info")
	require.Equal(t, float64(1), families["laminar_info"].Metric[0].Gauge.GetValue())
	require.Equal(t, "test-version", families["laminar_info"].Metric[0].Label[0].GetValue())

	require.Contains(t, families, "laminar_uptime_seconds")
	require.Contains(t, families, "laminar_runs_active")
	require.Contains(t, families, "go_goroutines")
}

func TestRecorderCountersIncrement(t *testing.T) {
	r := NewRecorder("test-version", registry.New(), nil)
	r.JobQueued()
	r.JobQueued()
	r.RunStarted("n0")
	r.RunCompleted("success")
	r.RunCompleted("failed")

	families := gather(t, r)
	require.Equal(t, float64(2), families["laminar_jobs_queued_total"].Metric[0].Counter.GetValue())
	require.Equal(t, float64(1), families["laminar_runs_started_total"].Metric[0].Counter.GetValue())

	byResult := map[string]float64{}
	for _, m := range families["laminar_runs_completed_total"].Metric {
		byResult[m.Label[0].GetValue()] = m.Counter.GetValue()
	}
	require.Equal(t, float64(1), byResult["success"])
	require.Equal(t, float64(1), byResult["failed"])
}

func TestRecorderReportsNodeStats(t *testing.T) {
	r := NewRecorder("test-version", registry.New(), func() []NodeStat {
		return []NodeStat{{Name: "n0", BusyExecutors: 2, NumExecutors: 4}}
	})

	families := gather(t, r)
	require.Contains(t, families, "laminar_node_executors_busy")
	require.Equal(t, float64(2), families["laminar_node_executors_busy"].Metric[0].Gauge.GetValue())
	require.Equal(t, "n0", families["laminar_node_executors_busy"].Metric[0].Label[0].GetValue())

	require.Contains(t, families, "laminar_node_executors_total")
	require.Equal(t, float64(4), families["laminar_node_executors_total"].Metric[0].Gauge.GetValue())
}

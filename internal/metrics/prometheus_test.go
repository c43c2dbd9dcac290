package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_Assignments(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordAssignment(ResultSuccess, 1.2)
	p.RecordAssignment(ResultSuccess, 2)
	p.RecordAssignment(ResultBusy, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.assignments.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.assignments.WithLabelValues(ResultBusy)))
	assert.Equal(t, 1, testutil.CollectAndCount(p.weight))
}

func TestPrometheusCollector_MemberLoadsReplaced(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordMemberLoads(map[string]float64{"Ana": 1, "Bruno": 2})
	assert.Equal(t, 2, testutil.CollectAndCount(p.memberLoad))

	p.RecordMemberLoads(map[string]float64{"Ana": 3})
	assert.Equal(t, 1, testutil.CollectAndCount(p.memberLoad))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.memberLoad.WithLabelValues("Ana")))
}

func TestPrometheusCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "")

	p.RecordReset()
	p.RecordConflictRetry()
	p.RecordConflictRetry()
	p.RecordLockWait(0.001)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.resets))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.conflictRetry))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "case_distribution_engine_lock_wait_seconds")
}

func TestNop(t *testing.T) {
	n := NewNop()
	n.RecordAssignment(ResultSuccess, 1)
	n.RecordLockWait(1)
	n.RecordMemberLoads(map[string]float64{"Ana": 1})
	n.RecordReset()
	n.RecordConflictRetry()
}

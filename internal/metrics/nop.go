package metrics

// NopMetrics discards everything.
type NopMetrics struct{}

var _ Collector = (*NopMetrics)(nil)

func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) RecordAssignment(_ /* result */ string, _ /* weight */ float64) {}

func (n *NopMetrics) RecordLockWait(_ /* seconds */ float64) {}

func (n *NopMetrics) RecordMemberLoads(_ /* loads */ map[string]float64) {}

func (n *NopMetrics) RecordReset() {}

func (n *NopMetrics) RecordConflictRetry() {}

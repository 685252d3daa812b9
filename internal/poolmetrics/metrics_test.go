package poolmetrics

import (
	"testing"
)

// A single NewCollector call per test binary run: prometheus.MustRegister
// panics on a duplicate registration against the default registry, so
// this package's tests share one Collector instance across assertions
// instead of constructing a fresh one per test function.
func TestCollectorRecordMethodsDoNotPanic(t *testing.T) {
	c := NewCollector()

	c.RecordSubmit()
	c.RecordDispatch()
	c.RecordCompleted(0.01)
	c.RecordUserError()
	c.RecordSerializationError()
	c.RecordAborted()
	c.SetRecoveryTime(0.5)
	c.SetWorkerCounts(2, 1, 0, 0)
	c.SetQueueDepth(3)
}

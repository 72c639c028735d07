package metrics

import "fmt"

// EpochMetrics is an ordered record of named metric values for one epoch.
// The name set is fixed at configuration time ("loss" plus one "acc_top{k}"
// entry per configured k) and the record is treated as immutable once the
// epoch that produced it returns.
type EpochMetrics struct {
	names  []string
	values map[string]float64
}

// NewEpochMetrics returns an empty record.
func NewEpochMetrics() *EpochMetrics {
	return &EpochMetrics{values: make(map[string]float64)}
}

// Set stores a value, appending the name to the order on first use.
func (em *EpochMetrics) Set(name string, value float64) {
	if _, ok := em.values[name]; !ok {
		em.names = append(em.names, name)
	}
	em.values[name] = value
}

// Get returns the value for name and whether it is present.
func (em *EpochMetrics) Get(name string) (float64, bool) {
	v, ok := em.values[name]
	return v, ok
}

// Names returns the metric names in insertion order.
func (em *EpochMetrics) Names() []string {
	out := make([]string, len(em.names))
	copy(out, em.names)
	return out
}

// LossKey is the metric name for the epoch mean loss.
const LossKey = "loss"

// AccTopKey returns the metric name for top-k accuracy, e.g. "acc_top1".
func AccTopKey(k int) string {
	return fmt.Sprintf("acc_top%d", k)
}

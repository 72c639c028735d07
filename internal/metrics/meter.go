package metrics

// Meter tracks a weighted running average of a scalar signal such as loss
// or batch accuracy. The zero value is ready to use.
type Meter struct {
	count int
	sum   float64
	avg   float64
	last  float64
}

// Reset returns the meter to its zero state.
func (m *Meter) Reset() {
	*m = Meter{}
}

// Update records value as observed for weight examples. Weight must be a
// positive example count; it is the batch size when value is a per-batch
// mean.
func (m *Meter) Update(value float64, weight int) {
	m.last = value
	m.sum += value * float64(weight)
	m.count += weight
	m.avg = m.sum / float64(m.count)
}

// Avg returns the weighted mean of all updates so far.
func (m *Meter) Avg() float64 { return m.avg }

// Last returns the most recent value passed to Update.
func (m *Meter) Last() float64 { return m.last }

// Count returns the total weight accumulated so far.
func (m *Meter) Count() int { return m.count }

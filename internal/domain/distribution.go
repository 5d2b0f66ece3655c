package domain

// Distribution is the per-outcome vector of outstanding token quantities for
// one market. It is mutated only by the market maker inside its critical
// section; everyone else works on snapshots. It is NOT safe for
// unsynchronized concurrent mutation.
type Distribution struct {
	ids   []OutcomeID
	index map[OutcomeID]int
	qty   []int64
}

// NewDistribution creates an all-zero distribution over the given outcomes,
// preserving their order for deterministic iteration.
func NewDistribution(ids []OutcomeID) *Distribution {
	d := &Distribution{
		ids:   make([]OutcomeID, len(ids)),
		index: make(map[OutcomeID]int, len(ids)),
		qty:   make([]int64, len(ids)),
	}
	copy(d.ids, ids)
	for i, id := range ids {
		d.index[id] = i
	}
	return d
}

// Apply adds delta to one outcome's outstanding quantity. No clamping: the
// sum of all deltas ever applied for an outcome equals its current quantity.
func (d *Distribution) Apply(id OutcomeID, delta int64) error {
	i, ok := d.index[id]
	if !ok {
		return ErrUnknownOutcome
	}
	d.qty[i] += delta
	return nil
}

// Unapply reverses a prior Apply with the same arguments.
func (d *Distribution) Unapply(id OutcomeID, delta int64) error {
	return d.Apply(id, -delta)
}

// Get returns the outstanding quantity for one outcome.
func (d *Distribution) Get(id OutcomeID) (int64, bool) {
	i, ok := d.index[id]
	if !ok {
		return 0, false
	}
	return d.qty[i], true
}

// Index returns the position of an outcome in the fixed vector order.
func (d *Distribution) Index(id OutcomeID) (int, bool) {
	i, ok := d.index[id]
	return i, ok
}

// Quantities returns a copy of the quantity vector as float64, in the fixed
// outcome order, ready for the cost function.
func (d *Distribution) Quantities() []float64 {
	q := make([]float64, len(d.qty))
	for i, v := range d.qty {
		q[i] = float64(v)
	}
	return q
}

// Snapshot returns an immutable copy of the distribution.
func (d *Distribution) Snapshot() *Distribution {
	c := NewDistribution(d.ids)
	copy(c.qty, d.qty)
	return c
}

// OutcomeIDs returns the outcomes in their fixed order.
func (d *Distribution) OutcomeIDs() []OutcomeID {
	ids := make([]OutcomeID, len(d.ids))
	copy(ids, d.ids)
	return ids
}

// Equal reports whether two distributions cover the same outcomes with the
// same quantities.
func (d *Distribution) Equal(other *Distribution) bool {
	if other == nil || len(d.ids) != len(other.ids) {
		return false
	}
	for i, id := range d.ids {
		if other.ids[i] != id || other.qty[i] != d.qty[i] {
			return false
		}
	}
	return true
}

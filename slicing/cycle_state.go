package slicing

// CycleState is the per-cycle bookkeeping: handovers committed per
// destination AP and the (slice, AP) pairs whose quantum was already
// adjusted. A fresh value is created for every cycle and passed explicitly
// to each decision.
type CycleState struct {
	maxHandovers int
	handovers    map[AccessPointID]int
	adjusted     map[APSlice]bool
}

// NewCycleState returns empty bookkeeping allowing maxHandovers handovers per AP.
func NewCycleState(maxHandovers int) *CycleState {
	return &CycleState{
		maxHandovers: maxHandovers,
		handovers:    make(map[AccessPointID]int),
		adjusted:     make(map[APSlice]bool),
	}
}

// HasBudget reports whether ap can take another handover this cycle.
func (cs *CycleState) HasBudget(ap AccessPointID) bool {
	return cs.handovers[ap] < cs.maxHandovers
}

// Handovers returns the handovers already committed towards ap.
func (cs *CycleState) Handovers(ap AccessPointID) int {
	return cs.handovers[ap]
}

// ConsumeBudget records a committed handover towards ap.
func (cs *CycleState) ConsumeBudget(ap AccessPointID) {
	cs.handovers[ap]++
}

// Adjusted reports whether slice's quantum at ap was changed this cycle.
func (cs *CycleState) Adjusted(slice SliceID, ap AccessPointID) bool {
	return cs.adjusted[APSlice{AP: ap, Slice: slice}]
}

// MarkAdjusted records a quantum change of slice at ap.
func (cs *CycleState) MarkAdjusted(slice SliceID, ap AccessPointID) {
	cs.adjusted[APSlice{AP: ap, Slice: slice}] = true
}

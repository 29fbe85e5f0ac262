package domain

// ─── State Machine Tables ───────────────────────────────────────────────────
// Edges are declared here so both the escrow services and their tests agree
// on exactly one source state per transition. Actor checks stay in the
// services — they need the caller identity.

var purchaseEdges = map[PurchaseStatus][]PurchaseStatus{
	PurchasePending:   {PurchaseAccepted, PurchaseCancelled, PurchaseDisputed},
	PurchaseAccepted:  {PurchaseDelivered, PurchaseDisputed},
	PurchaseDelivered: {PurchaseConfirmed, PurchaseDisputed},
}

// CanTransition reports whether a purchase may move from s to next.
func (s PurchaseStatus) CanTransition(next PurchaseStatus) bool {
	for _, n := range purchaseEdges[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further purchase transitions exist.
func (s PurchaseStatus) Terminal() bool {
	return len(purchaseEdges[s]) == 0
}

var taskEdges = map[TaskStatus][]TaskStatus{
	TaskOpen:       {TaskInProgress, TaskCancelled},
	TaskInProgress: {TaskSubmitted, TaskOpen},
	TaskSubmitted:  {TaskCompleted, TaskOpen},
}

// CanTransition reports whether a task may move from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, n := range taskEdges[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further task transitions exist.
func (s TaskStatus) Terminal() bool {
	return len(taskEdges[s]) == 0
}

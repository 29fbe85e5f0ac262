package domain

import (
	"bytes"
	"encoding/json"
	"testing"
)

// ─── State Machine Tests ────────────────────────────────────────────────────

func TestPurchaseTransitions(t *testing.T) {
	tests := []struct {
		from PurchaseStatus
		to   PurchaseStatus
		ok   bool
	}{
		{PurchasePending, PurchaseAccepted, true},
		{PurchasePending, PurchaseCancelled, true},
		{PurchasePending, PurchaseDelivered, false},
		{PurchaseAccepted, PurchaseDelivered, true},
		{PurchaseAccepted, PurchaseCancelled, false}, // no cancel after pending is left
		{PurchaseDelivered, PurchaseConfirmed, true},
		{PurchaseDelivered, PurchaseDisputed, true},
		{PurchaseConfirmed, PurchaseDisputed, false},
		{PurchaseCancelled, PurchaseAccepted, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("%s → %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestPurchaseTerminal(t *testing.T) {
	for _, s := range []PurchaseStatus{PurchaseConfirmed, PurchaseCancelled, PurchaseDisputed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []PurchaseStatus{PurchasePending, PurchaseAccepted, PurchaseDelivered} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTaskTransitions(t *testing.T) {
	tests := []struct {
		from TaskStatus
		to   TaskStatus
		ok   bool
	}{
		{TaskOpen, TaskInProgress, true},
		{TaskOpen, TaskCancelled, true},
		{TaskOpen, TaskSubmitted, false},
		{TaskInProgress, TaskSubmitted, true},
		{TaskInProgress, TaskOpen, true}, // acceptor cancel
		{TaskSubmitted, TaskCompleted, true},
		{TaskSubmitted, TaskOpen, true}, // creator reject
		{TaskSubmitted, TaskCancelled, false},
		{TaskCompleted, TaskOpen, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("%s → %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

// ─── Model Tests ────────────────────────────────────────────────────────────

func TestTransactionParty(t *testing.T) {
	tx := Transaction{FromHash: "aaa", ToHash: "bbb"}
	if !tx.Party("aaa") || !tx.Party("bbb") {
		t.Error("sender and receiver should both be parties")
	}
	if tx.Party("ccc") {
		t.Error("third wallet should not be a party")
	}
	if tx.Party("") {
		t.Error("empty hash should never match, even on system-side transactions")
	}
}

func TestValidUserHash(t *testing.T) {
	valid := SHA256Hex([]byte("student-1"))
	if !ValidUserHash(valid) {
		t.Errorf("ValidUserHash(%q) = false, want true", valid)
	}
	for _, s := range []string{
		"",
		"abc",
		valid[:63],
		valid + "0",
		"G" + valid[1:], // non-hex
	} {
		if ValidUserHash(s) {
			t.Errorf("ValidUserHash(%q) = true, want false", s)
		}
	}
}

func TestTimestampWireFormat(t *testing.T) {
	w := Wallet{UserHash: "abc", CreatedAt: 1700000000, LastActiveAt: 1700000000}
	b, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Clients see epoch milliseconds; storage keeps epoch seconds.
	if !bytes.Contains(b, []byte(`"created_at":1700000000000`)) {
		t.Errorf("created_at not in milliseconds: %s", b)
	}

	var got Wallet
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.CreatedAt != w.CreatedAt {
		t.Errorf("round trip: %d, want %d", got.CreatedAt, w.CreatedAt)
	}
}

func TestTimestampOmitEmpty(t *testing.T) {
	b, err := json.Marshal(Task{TaskID: "t-1", Status: TaskOpen})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if bytes.Contains(b, []byte("accepted_at")) {
		t.Errorf("zero accepted_at serialized: %s", b)
	}
}

func TestNewPage(t *testing.T) {
	p := NewPage([]int{1, 2, 3}, 7, 1, 3)
	if p.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", p.TotalPages)
	}
	empty := NewPage[int](nil, 0, 1, 20)
	if empty.Data == nil {
		t.Error("Data should be an empty slice, not nil")
	}
	if empty.TotalPages != 0 {
		t.Errorf("TotalPages = %d, want 0", empty.TotalPages)
	}
}

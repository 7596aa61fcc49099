package domain

// SettlementEvent is the asynchronous outcome delivered by the external
// settlement client after a batch submission.
type SettlementEvent struct {
	BatchID       string `json:"batchID"`
	SettlementRef string `json:"settlementRef,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Confirmed     bool   `json:"confirmed"`
}

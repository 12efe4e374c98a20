package model

import "xdao.co/mcpreg/address"

// Receipt acknowledges an accepted request.
//
// ID is the CID of the canonical signed request bytes; resubmitting the same
// bytes is rejected as a duplicate.
type Receipt struct {
	ID        string            `json:"id"`
	Op        string            `json:"op"`
	Caller    address.Address   `json:"caller"`
	Slot      uint64            `json:"slot"`
	Addresses map[string]string `json:"addresses,omitempty"`
}

// RecordView is the JSON projection of a registry record.
type RecordView struct {
	Address   address.Address `json:"address"`
	Kind      string          `json:"kind"`
	Authority address.Address `json:"authority"`
	Status    string          `json:"status"`
	Payload   string          `json:"payload"`
	CreatedAt int64           `json:"createdAt"`
}

// BalanceView is the JSON projection of a token holding account.
type BalanceView struct {
	Account address.Address `json:"account"`
	Mint    address.Address `json:"mint"`
	Owner   address.Address `json:"owner"`
	Amount  uint64          `json:"amount"`
}

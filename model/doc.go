// Package model defines stable boundary types shared by the processor, the
// RPC layer and the CLI: the error taxonomy and JSON views of receipts,
// records and balances.
//
// These structs are the only types intended for direct JSON serialization by
// consumers.
package model

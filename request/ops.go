package request

// Op names a request operation.
type Op string

const (
	OpRecordInitialize Op = "record.initialize"
	OpRecordUpdate     Op = "record.update"
	OpInitializeMint   Op = "token.initialize_mint"
	OpMint             Op = "token.mint"
	OpOpenAccount      Op = "token.open_account"
	OpTransfer         Op = "token.transfer"
	OpAirdrop          Op = "system.airdrop"
	OpSystemTransfer   Op = "system.transfer"
)

// Header keys present on every request.
const (
	KeyOp           = "Op"
	KeyNonce        = "Nonce"
	KeySignerKey    = "Signer-Key"
	KeySignatureAlg = "Signature-Alg"
	KeyHashAlg      = "Hash-Alg"
)

// Operation field keys.
const (
	FieldKind     = "Kind"
	FieldSeed     = "Seed"
	FieldRecord   = "Record"
	FieldPayload  = "Payload"
	FieldAmount   = "Amount"
	FieldDecimals = "Decimals"
	FieldMint     = "Mint"
	FieldTo       = "To"
	FieldFrom     = "From"
	FieldOwner    = "Owner"
)

type opFields struct {
	required []string
	optional []string
}

var ops = map[Op]opFields{
	OpRecordInitialize: {required: []string{FieldKind, FieldSeed}},
	OpRecordUpdate:     {required: []string{FieldKind, FieldRecord, FieldPayload}},
	OpInitializeMint:   {required: []string{FieldSeed, FieldAmount}, optional: []string{FieldDecimals}},
	OpMint:             {required: []string{FieldMint, FieldTo, FieldAmount}},
	OpOpenAccount:      {required: []string{FieldMint, FieldOwner}},
	OpTransfer:         {required: []string{FieldFrom, FieldTo, FieldAmount}},
	OpAirdrop:          {required: []string{FieldTo, FieldAmount}},
	OpSystemTransfer:   {required: []string{FieldTo, FieldAmount}},
}

// Ops returns every known operation.
func Ops() []Op {
	return []Op{OpRecordInitialize, OpRecordUpdate, OpInitializeMint, OpMint, OpOpenAccount, OpTransfer, OpAirdrop, OpSystemTransfer}
}

func isHeaderKey(k string) bool {
	switch k {
	case KeyOp, KeyNonce, KeySignerKey, KeySignatureAlg, KeyHashAlg:
		return true
	}
	return false
}

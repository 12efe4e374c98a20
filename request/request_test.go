package request

import (
	"bytes"
	"crypto/ed25519"
	"strings"
	"testing"

	"xdao.co/mcpreg/keys"
)

type countingReader struct{ b byte }

func (r *countingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

const testNonce = "6f1c2a3b-4d5e-4f60-8172-93a4b5c6d7e8"

func testSigner(t *testing.T, b byte) *keys.Ed25519Signer {
	t.Helper()
	seed := bytes.Repeat([]byte{b}, ed25519.SeedSize)
	s, err := keys.NewEd25519SignerFromSeed(seed)
	if err != nil {
		t.Fatalf("NewEd25519SignerFromSeed: %v", err)
	}
	return s
}

func transferFields() map[string]string {
	return map[string]string{
		FieldFrom:   "11111111111111111111111111111111",
		FieldTo:     "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		FieldAmount: "200",
	}
}

func TestSignParseVerifyEd25519(t *testing.T) {
	s := testSigner(t, 1)
	raw, err := Sign(s, OpTransfer, transferFields(), WithNonce(testNonce))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte(Preamble+"\nAmount: 200\nFrom: ")) {
		t.Fatalf("unexpected layout:\n%s", raw)
	}

	r, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Op != OpTransfer || r.Nonce != testNonce || r.HashAlg != keys.HashSHA256 {
		t.Fatalf("unexpected header: %+v", r)
	}
	if !bytes.HasSuffix(r.Signed, []byte(Postamble)) {
		t.Fatalf("signed scope must end at the postamble")
	}
	caller, err := r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if caller != s.Address() {
		t.Fatalf("caller mismatch")
	}
	amount, err := r.Uint64(FieldAmount)
	if err != nil || amount != 200 {
		t.Fatalf("Uint64: %d %v", amount, err)
	}
}

func TestSignParseVerifyDilithium3SHA3(t *testing.T) {
	s, err := keys.GenerateDilithium3Signer(&countingReader{})
	if err != nil {
		t.Fatalf("GenerateDilithium3Signer: %v", err)
	}
	raw, err := Sign(s, OpRecordInitialize, map[string]string{FieldKind: "model", FieldSeed: "gpt-small"}, WithHashAlg(keys.HashSHA3_256))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	r, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	caller, err := r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if caller != s.Address() {
		t.Fatalf("caller mismatch")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	raw, err := Sign(testSigner(t, 2), OpTransfer, transferFields(), WithNonce(testNonce))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tampered := bytes.Replace(raw, []byte("Amount: 200"), []byte("Amount: 900"), 1)
	r, err := Parse(tampered)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = r.Verify()
	if !IsKind(err, KindCrypto) || RuleID(err) != "REQ-CRYPTO-003" {
		t.Fatalf("got %v (rule %q), want REQ-CRYPTO-003", err, RuleID(err))
	}
}

func TestSignRandomNonce(t *testing.T) {
	s := testSigner(t, 3)
	a, err := Sign(s, OpTransfer, transferFields())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	b, err := Sign(s, OpTransfer, transferFields())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("expected distinct nonces")
	}
}

func TestSignRejectsBadFields(t *testing.T) {
	s := testSigner(t, 4)
	cases := []struct {
		name   string
		op     Op
		fields map[string]string
		rule   string
	}{
		{"unknown op", Op("record.delete"), map[string]string{}, "REQ-VAL-002"},
		{"missing field", OpTransfer, map[string]string{FieldFrom: "x", FieldTo: "y"}, "REQ-VAL-101"},
		{"extra field", OpOpenAccount, map[string]string{FieldMint: "m", FieldOwner: "o", FieldAmount: "1"}, "REQ-VAL-102"},
		{"reserved field", OpAirdrop, map[string]string{KeyNonce: "n", FieldTo: "t", FieldAmount: "1"}, "REQ-VAL-010"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Sign(s, tc.op, tc.fields, WithNonce(testNonce))
			if RuleID(err) != tc.rule {
				t.Fatalf("got %v (rule %q), want %s", err, RuleID(err), tc.rule)
			}
		})
	}
	if _, err := Sign(s, OpTransfer, transferFields(), WithHashAlg("md5")); RuleID(err) != "REQ-VAL-004" {
		t.Fatalf("unsupported hash: got %v", err)
	}
	if _, err := Sign(s, OpTransfer, transferFields(), WithNonce("not-a-uuid")); RuleID(err) != "REQ-VAL-003" {
		t.Fatalf("bad nonce: got %v", err)
	}
}

func TestParseRejectsNonCanonical(t *testing.T) {
	raw, err := Sign(testSigner(t, 5), OpTransfer, transferFields(), WithNonce(testNonce))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	s := string(raw)
	lines := strings.Split(s, "\n")
	swapped := append([]string(nil), lines...)
	swapped[1], swapped[2] = swapped[2], swapped[1]

	cases := []struct {
		name  string
		input string
		rule  string
	}{
		{"trailing newline", s + "\n", "REQ-CANON-003"},
		{"crlf", strings.ReplaceAll(s, "\n", "\r\n"), "REQ-CANON-001"},
		{"bom", "\xEF\xBB\xBF" + s, "REQ-CANON-002"},
		{"unsorted", strings.Join(swapped, "\n"), "REQ-CANON-020"},
		{"duplicate", strings.Replace(s, "Amount: 200\n", "Amount: 200\nAmount: 200\n", 1), "REQ-STR-031"},
		{"trailing space", strings.Replace(s, "Amount: 200", "Amount: 200 ", 1), "REQ-STR-030"},
		{"double space", strings.Replace(s, "Amount: 200", "Amount:  200", 1), "REQ-STR-030"},
		{"no colon", strings.Replace(s, "Amount: 200", "Amount 200", 1), "REQ-STR-030"},
		{"no signature", strings.Join(lines[:len(lines)-1], "\n"), "REQ-STR-010"},
		{"bad signature", strings.Join(lines[:len(lines)-1], "\n") + "\nSignature: !!!", "REQ-STR-041"},
		{"no preamble", strings.TrimPrefix(s, Preamble+"\n"), "REQ-STR-010"},
		{"unknown op", strings.Replace(s, "Op: token.transfer", "Op: token.burn", 1), "REQ-VAL-002"},
		{"oversized", s + strings.Repeat("A", MaxSize), "REQ-STR-002"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.input))
			if err == nil {
				t.Fatalf("expected error")
			}
			if RuleID(err) != tc.rule {
				t.Fatalf("got %v (rule %q), want %s", err, RuleID(err), tc.rule)
			}
		})
	}
}

func TestParseRejectsAlgorithmMismatch(t *testing.T) {
	raw, err := Sign(testSigner(t, 6), OpTransfer, transferFields(), WithNonce(testNonce))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	bad := strings.Replace(string(raw), "Signature-Alg: ed25519", "Signature-Alg: dilithium3", 1)
	if _, err := Parse([]byte(bad)); RuleID(err) != "REQ-VAL-006" {
		t.Fatalf("got %v want REQ-VAL-006", err)
	}
}

func TestFieldAccessors(t *testing.T) {
	r := &Request{Fields: map[string]string{
		"A":  "007",
		"B":  "18446744073709551615",
		"C":  strings.Repeat("ab", 32),
		"D":  strings.Repeat("AB", 32),
		"E":  "256",
		"F":  "not-base58-0OIl",
		"S":  strings.Repeat("s", 33),
		"OK": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
	}}
	if _, err := r.Uint64("A"); err == nil {
		t.Fatalf("leading zeros must be rejected")
	}
	if v, err := r.Uint64("B"); err != nil || v != ^uint64(0) {
		t.Fatalf("max uint64: %d %v", v, err)
	}
	if b, err := r.Bytes32("C"); err != nil || b[0] != 0xab {
		t.Fatalf("Bytes32: %v", err)
	}
	if _, err := r.Bytes32("D"); err == nil {
		t.Fatalf("uppercase hex must be rejected")
	}
	if _, err := r.Uint8("E", 9); err == nil {
		t.Fatalf("expected range error")
	}
	if v, err := r.Uint8("missing", 9); err != nil || v != 9 {
		t.Fatalf("default: %d %v", v, err)
	}
	if _, err := r.Address("F"); RuleID(err) != "REQ-VAL-201" {
		t.Fatalf("Address: %v", err)
	}
	if _, err := r.Address("OK"); err != nil {
		t.Fatalf("Address: %v", err)
	}
	if _, err := r.Seed("S"); err == nil {
		t.Fatalf("long seed must be rejected")
	}
}

// Package request implements the canonical signed request envelope.
//
// A request is LF-separated text:
//
//	-----BEGIN MCPREG REQUEST-----
//	Amount: 200
//	From: <base58>
//	Hash-Alg: sha256
//	Nonce: <uuid>
//	Op: token.transfer
//	Signature-Alg: ed25519
//	Signer-Key: ed25519:<base64>
//	To: <base58>
//	-----END MCPREG REQUEST-----
//	Signature: <base64>
//
// Keys are ASCII, unique and sorted. There is no trailing newline. The
// signature covers every byte before the final newline.
package request

import (
	"bytes"
	"encoding/base64"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/keys"
)

const (
	Preamble        = "-----BEGIN MCPREG REQUEST-----"
	Postamble       = "-----END MCPREG REQUEST-----"
	SignaturePrefix = "Signature: "

	// MaxSize bounds an encoded request. Dilithium3 keys and signatures
	// dominate the size.
	MaxSize = 64 << 10
)

// Request is a parsed, canonical envelope. Signature validity is checked by
// Verify, not Parse.
type Request struct {
	Op           Op
	Nonce        string
	SignerKey    string
	SignatureAlg string
	HashAlg      string
	// Fields holds the operation fields (every key except the header keys).
	Fields map[string]string

	Signature []byte
	Raw       []byte
	Signed    []byte
}

// Render produces the canonical unsigned body for pairs.
func Render(pairs map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		if k == "" {
			return nil, newError(KindRender, "REQ-RENDER-001", "empty key")
		}
		if !isASCII(k) || strings.ContainsAny(k, ": \t\n") {
			return nil, newError(KindRender, "REQ-RENDER-001", "invalid key "+k)
		}
		if k == strings.TrimSuffix(SignaturePrefix, ": ") {
			return nil, newError(KindRender, "REQ-RENDER-001", "reserved key Signature")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(Preamble)
	sb.WriteString("\n")
	for _, k := range keys {
		v := pairs[k]
		if err := checkValue(v); err != nil {
			return nil, wrapError(KindRender, "REQ-RENDER-002", "invalid value for "+k, err)
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	sb.WriteString(Postamble)
	return []byte(sb.String()), nil
}

func checkValue(v string) error {
	if v == "" {
		return newError(KindParse, "REQ-STR-030", "empty value")
	}
	if !utf8.ValidString(v) {
		return newError(KindParse, "REQ-STR-001", "value must be valid UTF-8")
	}
	if strings.HasPrefix(v, " ") {
		return newError(KindParse, "REQ-STR-030", "value must not start with a space")
	}
	if strings.ContainsAny(v, "\r\n") {
		return newError(KindParse, "REQ-STR-030", "value must not contain newlines")
	}
	if strings.HasSuffix(v, " ") || strings.HasSuffix(v, "\t") {
		return newError(KindParse, "REQ-STR-030", "trailing whitespace forbidden")
	}
	return nil
}

type signOptions struct {
	hashAlg string
	nonce   string
}

type SignOption func(*signOptions)

// WithHashAlg selects the digest algorithm (default sha256).
func WithHashAlg(alg string) SignOption {
	return func(o *signOptions) { o.hashAlg = alg }
}

// WithNonce fixes the nonce instead of generating a random UUID.
func WithNonce(nonce string) SignOption {
	return func(o *signOptions) { o.nonce = nonce }
}

// Sign builds and signs a request for op. The returned bytes parse and verify.
func Sign(s keys.Signer, op Op, fields map[string]string, opts ...SignOption) ([]byte, error) {
	o := signOptions{hashAlg: keys.HashSHA256}
	for _, opt := range opts {
		opt(&o)
	}
	if o.nonce == "" {
		o.nonce = uuid.NewString()
	}

	pairs := make(map[string]string, len(fields)+5)
	for k, v := range fields {
		if isHeaderKey(k) {
			return nil, newError(KindValidation, "REQ-VAL-010", "field "+k+" is reserved")
		}
		pairs[k] = v
	}
	pairs[KeyOp] = string(op)
	pairs[KeyNonce] = o.nonce
	pairs[KeySignerKey] = keys.SignerKey(s)
	pairs[KeySignatureAlg] = s.Algorithm()
	pairs[KeyHashAlg] = o.hashAlg
	if err := validateHeader(pairs); err != nil {
		return nil, err
	}
	if err := validateFields(op, fields); err != nil {
		return nil, err
	}

	body, err := Render(pairs)
	if err != nil {
		return nil, err
	}
	digest, err := keys.Digest(o.hashAlg, body)
	if err != nil {
		return nil, wrapError(KindCrypto, "REQ-CRYPTO-010", "digest", err)
	}
	sig, err := s.Sign(digest)
	if err != nil {
		return nil, wrapError(KindCrypto, "REQ-CRYPTO-011", "sign", err)
	}
	out := make([]byte, 0, len(body)+1+len(SignaturePrefix)+base64.StdEncoding.EncodedLen(len(sig)))
	out = append(out, body...)
	out = append(out, '\n')
	out = append(out, SignaturePrefix...)
	out = append(out, base64.StdEncoding.EncodeToString(sig)...)
	return out, nil
}

// Parse parses a request and enforces canonical form. Non-canonical inputs
// are rejected.
func Parse(data []byte) (*Request, error) {
	if len(data) > MaxSize {
		return nil, newError(KindParse, "REQ-STR-002", "request too large")
	}
	if err := applyParseRules(data); err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) < 3 || lines[0] != Preamble {
		return nil, newError(KindParse, "REQ-STR-010", "request preamble must be exact")
	}
	sigLine := lines[len(lines)-1]
	if lines[len(lines)-2] != Postamble {
		return nil, newError(KindParse, "REQ-STR-010", "postamble must precede the signature line")
	}
	if !strings.HasPrefix(sigLine, SignaturePrefix) {
		return nil, newError(KindParse, "REQ-STR-040", "missing signature line")
	}

	pairs := make(map[string]string, len(lines)-3)
	prev := ""
	for _, line := range lines[1 : len(lines)-2] {
		key, val, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, newError(KindParse, "REQ-STR-030", "invalid key-value formatting")
		}
		if key == "" {
			return nil, newError(KindParse, "REQ-STR-030", "empty key")
		}
		if !isASCII(key) {
			return nil, newError(KindParse, "REQ-STR-030", "non-ASCII key")
		}
		if err := checkValue(val); err != nil {
			return nil, err
		}
		if _, dup := pairs[key]; dup {
			return nil, newError(KindParse, "REQ-STR-031", "duplicate key "+key)
		}
		if prev != "" && key < prev {
			return nil, newError(KindCanonical, "REQ-CANON-020", "keys not sorted lexicographically")
		}
		prev = key
		pairs[key] = val
	}

	signed := data[:len(data)-len(sigLine)-1]
	canonical, err := Render(pairs)
	if err != nil {
		return nil, wrapError(KindCanonical, "REQ-CANON-030", "non-canonical request", err)
	}
	if !bytes.Equal(signed, canonical) {
		return nil, newError(KindCanonical, "REQ-CANON-030", "non-canonical request")
	}

	sig, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sigLine, SignaturePrefix))
	if err != nil || len(sig) == 0 {
		return nil, wrapError(KindParse, "REQ-STR-041", "invalid signature encoding", err)
	}

	if err := validateHeader(pairs); err != nil {
		return nil, err
	}
	op := Op(pairs[KeyOp])
	fields := make(map[string]string, len(pairs))
	for k, v := range pairs {
		if !isHeaderKey(k) {
			fields[k] = v
		}
	}
	if err := validateFields(op, fields); err != nil {
		return nil, err
	}

	return &Request{
		Op:           op,
		Nonce:        pairs[KeyNonce],
		SignerKey:    pairs[KeySignerKey],
		SignatureAlg: pairs[KeySignatureAlg],
		HashAlg:      pairs[KeyHashAlg],
		Fields:       fields,
		Signature:    sig,
		Raw:          append([]byte(nil), data...),
		Signed:       append([]byte(nil), signed...),
	}, nil
}

// Verify checks the signature and returns the authenticated caller identity.
func (r *Request) Verify() (address.Address, error) {
	alg, pub, err := keys.ParseSignerKey(r.SignerKey)
	if err != nil {
		return address.Address{}, wrapError(KindCrypto, "REQ-CRYPTO-001", "invalid signer key", err)
	}
	digest, err := keys.Digest(r.HashAlg, r.Signed)
	if err != nil {
		return address.Address{}, wrapError(KindCrypto, "REQ-CRYPTO-002", "digest", err)
	}
	if err := keys.VerifyDigest(alg, pub, digest, r.Signature); err != nil {
		return address.Address{}, wrapError(KindCrypto, "REQ-CRYPTO-003", "signature verification failed", err)
	}
	id, err := keys.IdentityOf(alg, pub)
	if err != nil {
		return address.Address{}, wrapError(KindCrypto, "REQ-CRYPTO-001", "invalid signer key", err)
	}
	return id, nil
}

func validateHeader(pairs map[string]string) error {
	for _, k := range []string{KeyOp, KeyNonce, KeySignerKey, KeySignatureAlg, KeyHashAlg} {
		if pairs[k] == "" {
			return newError(KindValidation, "REQ-VAL-001", "missing "+k)
		}
	}
	if _, ok := ops[Op(pairs[KeyOp])]; !ok {
		return newError(KindValidation, "REQ-VAL-002", "unknown op "+pairs[KeyOp])
	}
	n, err := uuid.Parse(pairs[KeyNonce])
	if err != nil || n.String() != pairs[KeyNonce] {
		return newError(KindValidation, "REQ-VAL-003", "nonce must be a lowercase hyphenated UUID")
	}
	switch pairs[KeyHashAlg] {
	case keys.HashSHA256, keys.HashSHA512, keys.HashSHA3_256:
	default:
		return newError(KindValidation, "REQ-VAL-004", "unsupported Hash-Alg "+pairs[KeyHashAlg])
	}
	alg, _, err := keys.ParseSignerKey(pairs[KeySignerKey])
	if err != nil {
		return wrapError(KindValidation, "REQ-VAL-005", "invalid Signer-Key", err)
	}
	if alg != pairs[KeySignatureAlg] {
		return newError(KindValidation, "REQ-VAL-006", "Signature-Alg does not match Signer-Key")
	}
	return nil
}

func validateFields(op Op, fields map[string]string) error {
	shape, ok := ops[op]
	if !ok {
		return newError(KindValidation, "REQ-VAL-002", "unknown op "+string(op))
	}
	allowed := map[string]bool{}
	for _, k := range shape.required {
		allowed[k] = true
		if fields[k] == "" {
			return newError(KindValidation, "REQ-VAL-101", string(op)+": missing field "+k)
		}
	}
	for _, k := range shape.optional {
		allowed[k] = true
	}
	for k := range fields {
		if !allowed[k] {
			return newError(KindValidation, "REQ-VAL-102", string(op)+": unexpected field "+k)
		}
	}
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

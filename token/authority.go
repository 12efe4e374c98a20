package token

import (
	"fmt"

	"xdao.co/mcpreg/address"
)

// Authority is the capability presented for a privileged ledger call.
//
// A signer authority carries an identity that the request layer has already
// authenticated. A derived authority carries a derivation proof instead; the
// ledger accepts it only if the proof re-derives the identity.
type Authority struct {
	Identity address.Address
	Proof    *address.Proof
}

// Signer wraps an authenticated caller identity.
func Signer(id address.Address) Authority {
	return Authority{Identity: id}
}

// Derived builds an authority from a derivation proof.
func Derived(p address.Proof) (Authority, error) {
	id, err := p.Address()
	if err != nil {
		return Authority{}, err
	}
	return Authority{Identity: id, Proof: &p}, nil
}

// authorize checks that a stands for want.
func (a Authority) authorize(want address.Address, mismatch error) error {
	if a.Identity != want {
		return fmt.Errorf("%w: expected %s, got %s", mismatch, want, a.Identity)
	}
	if a.Proof != nil {
		if err := a.Proof.Verify(a.Identity); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAuthority, err)
		}
	}
	return nil
}

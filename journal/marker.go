package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/storage"
)

// ProgramID owns the acceptance markers. A marker is a rent-free account at
// PDA(["request", sha256(raw)]) holding the accepted request bytes; it is
// written in the same transaction as the request's effects, which makes the
// account store, not the archive, the authority on whether a request ran.
var ProgramID = address.MustParse("BbuL2BiedEuxqPCL83eZDKk8yQixD9epJ1rTStu5AxzJ")

const markerSeedPrefix = "request"

// MarkerAddress returns the acceptance marker address of request id.
func MarkerAddress(id cid.Cid) (address.Address, error) {
	if !id.Defined() {
		return address.Address{}, ErrInvalidCID
	}
	mh, err := multihash.Decode(id.Hash())
	if err != nil {
		return address.Address{}, fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	if mh.Code != multihash.SHA2_256 || len(mh.Digest) != 32 {
		return address.Address{}, fmt.Errorf("%w: not a sha2-256 id", ErrInvalidCID)
	}
	a, _, err := address.Derive(ProgramID, []byte(markerSeedPrefix), mh.Digest)
	return a, err
}

// Guard returns the storage guard that records raw as accepted. It fails
// with ErrDuplicate if the marker already exists.
func Guard(id cid.Cid, raw []byte) (storage.Guard, error) {
	addr, err := MarkerAddress(id)
	if err != nil {
		return nil, err
	}
	marker := storage.Account{Address: addr, Owner: ProgramID, Data: raw}
	return func(tx storage.Tx) error {
		err := tx.Allocate(marker)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return ErrDuplicate
		}
		return err
	}, nil
}

// Accepted returns the request bytes recorded by the marker of id, or
// ErrNotFound.
func Accepted(ctx context.Context, store *storage.Store, id cid.Cid) ([]byte, error) {
	addr, err := MarkerAddress(id)
	if err != nil {
		return nil, err
	}
	acct, err := store.View(ctx, addr)
	if storage.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if acct.Owner != ProgramID {
		return nil, ErrNotFound
	}
	return acct.Data, nil
}

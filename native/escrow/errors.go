package escrow

import "errors"

var (
	// ErrUnauthorized marks a caller lacking the role an operation requires.
	ErrUnauthorized = errors.New("escrow: unauthorized caller")
	// ErrNotListed marks an operation against a deed with no active listing.
	ErrNotListed = errors.New("escrow: no active listing")
	// ErrInvalidListing marks listing parameters that violate an invariant,
	// including registry ownership and approval preconditions.
	ErrInvalidListing = errors.New("escrow: invalid listing")
	// ErrIncompleteSale marks a finalize attempt before approvals,
	// inspection or funding are satisfied.
	ErrIncompleteSale = errors.New("escrow: sale incomplete")

	errNilState    = errors.New("escrow engine: state not configured")
	errNilRegistry = errors.New("escrow engine: deed registry not configured")
	errNilVault    = errors.New("escrow engine: custody vault not configured")
)

package escrow

import (
	"fmt"
	"math/big"
)

// Roles holds the transacting identities for an engine instance. The seller
// is fixed at engine creation; the remaining roles are assignable through
// seller-gated admin operations. The buyer recorded here is the default for
// role checks that are not listing-specific; each listing carries its own
// buyer.
type Roles struct {
	Seller    [20]byte
	Buyer     [20]byte
	Lender    [20]byte
	Inspector [20]byte
}

// Listing is the per-deed record of an in-progress sale. It is created by
// List, mutated by deposits, inspection and approvals, and closed exactly
// once by FinalizeSale or CancelSale. The record survives settlement so the
// cancellation audit trail stays queryable; Listed reports whether the sale
// is still active.
type Listing struct {
	AssetID          uint64
	Buyer            [20]byte
	PurchasePrice    *big.Int
	EarnestAmount    *big.Int
	Listed           bool
	InspectionPassed bool
	Approvals        [][20]byte
	EarnestDeposited *big.Int
	BalanceDeposited *big.Int
	CancelledBy      [20]byte
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.PurchasePrice = cloneBigInt(l.PurchasePrice)
	clone.EarnestAmount = cloneBigInt(l.EarnestAmount)
	clone.EarnestDeposited = cloneBigInt(l.EarnestDeposited)
	clone.BalanceDeposited = cloneBigInt(l.BalanceDeposited)
	clone.Approvals = append([][20]byte(nil), l.Approvals...)
	return &clone
}

// ApprovedBy reports whether the identity has approved the sale.
func (l *Listing) ApprovedBy(addr [20]byte) bool {
	if l == nil {
		return false
	}
	for _, approved := range l.Approvals {
		if approved == addr {
			return true
		}
	}
	return false
}

// grantApproval records the identity's approval, reporting whether the set
// changed. Repeated approvals by the same identity are no-ops.
func (l *Listing) grantApproval(addr [20]byte) bool {
	if l.ApprovedBy(addr) {
		return false
	}
	l.Approvals = append(l.Approvals, addr)
	return true
}

// TotalDeposited returns the sum of earnest and lender deposits held for the
// listing.
func (l *Listing) TotalDeposited() *big.Int {
	total := cloneBigInt(l.EarnestDeposited)
	return total.Add(total, cloneBigInt(l.BalanceDeposited))
}

// SanitizeListing validates and normalises the supplied listing, returning a
// cloned instance with non-nil amount fields. The function does not mutate
// the original value.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("nil listing")
	}
	if l.AssetID == 0 {
		return nil, fmt.Errorf("listing asset id required")
	}
	clone := l.Clone()
	if clone.PurchasePrice.Sign() <= 0 {
		return nil, fmt.Errorf("listing purchase price must be positive")
	}
	if clone.EarnestAmount.Sign() < 0 {
		return nil, fmt.Errorf("listing earnest amount must be non-negative")
	}
	if clone.EarnestAmount.Cmp(clone.PurchasePrice) > 0 {
		return nil, fmt.Errorf("listing earnest amount exceeds purchase price")
	}
	if clone.EarnestDeposited.Sign() < 0 || clone.BalanceDeposited.Sign() < 0 {
		return nil, fmt.Errorf("listing deposits must be non-negative")
	}
	if clone.Buyer == ([20]byte{}) {
		return nil, fmt.Errorf("listing buyer required")
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

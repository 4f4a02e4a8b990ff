package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"deedvault/core/types"
)

const (
	EventTypeListed             = "escrow.listed"
	EventTypeEarnestDeposited   = "escrow.earnest_deposited"
	EventTypeBalanceDeposited   = "escrow.balance_deposited"
	EventTypeInspectionApproved = "escrow.inspection_approved"
	EventTypeSaleApproved       = "escrow.sale_approved"
	EventTypeSaleFinalized      = "escrow.sale_finalized"
	EventTypeSaleCancelled      = "escrow.sale_cancelled"
	EventTypeRoleUpdated        = "escrow.role_updated"
)

// NewListedEvent returns the canonical payload for a freshly created listing.
func NewListedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListed, l, nil)
}

// NewEarnestDepositedEvent records an earnest deposit by the listing buyer.
func NewEarnestDepositedEvent(l *Listing, from [20]byte, amount *big.Int) *types.Event {
	return newListingEvent(EventTypeEarnestDeposited, l, map[string]string{
		"from":   hex.EncodeToString(from[:]),
		"amount": cloneBigInt(amount).String(),
	})
}

// NewBalanceDepositedEvent records a balance deposit by the lender.
func NewBalanceDepositedEvent(l *Listing, from [20]byte, amount *big.Int) *types.Event {
	return newListingEvent(EventTypeBalanceDeposited, l, map[string]string{
		"from":   hex.EncodeToString(from[:]),
		"amount": cloneBigInt(amount).String(),
	})
}

// NewInspectionApprovedEvent records the inspection pass transition.
func NewInspectionApprovedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeInspectionApproved, l, nil)
}

// NewSaleApprovedEvent records a party's sale approval.
func NewSaleApprovedEvent(l *Listing, approver [20]byte) *types.Event {
	return newListingEvent(EventTypeSaleApproved, l, map[string]string{
		"approver": hex.EncodeToString(approver[:]),
	})
}

// NewSaleFinalizedEvent records a completed sale settlement.
func NewSaleFinalizedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeSaleFinalized, l, nil)
}

// NewSaleCancelledEvent records a cancellation, including which party
// triggered it and how the earnest was attributed.
func NewSaleCancelledEvent(l *Listing, cancelledBy [20]byte) *types.Event {
	fault := "seller"
	if l != nil && l.InspectionPassed {
		fault = "buyer"
	}
	return newListingEvent(EventTypeSaleCancelled, l, map[string]string{
		"cancelledBy": hex.EncodeToString(cancelledBy[:]),
		"fault":       fault,
	})
}

// NewRoleUpdatedEvent records a seller-gated role reassignment.
func NewRoleUpdatedEvent(role string, addr [20]byte) *types.Event {
	return &types.Event{Type: EventTypeRoleUpdated, Attributes: map[string]string{
		"role":    role,
		"address": hex.EncodeToString(addr[:]),
	}}
}

func newListingEvent(eventType string, l *Listing, extra map[string]string) *types.Event {
	attrs := make(map[string]string)
	if l != nil {
		attrs["assetId"] = strconv.FormatUint(l.AssetID, 10)
		attrs["buyer"] = hex.EncodeToString(l.Buyer[:])
		attrs["purchasePrice"] = cloneBigInt(l.PurchasePrice).String()
		attrs["earnestAmount"] = cloneBigInt(l.EarnestAmount).String()
		attrs["listed"] = strconv.FormatBool(l.Listed)
		attrs["inspectionPassed"] = strconv.FormatBool(l.InspectionPassed)
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

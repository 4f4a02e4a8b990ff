package registry

import (
	"encoding/hex"
	"strconv"

	"deedvault/core/types"
)

const (
	EventTypeMinted      = "registry.minted"
	EventTypeApproved    = "registry.approved"
	EventTypeTransferred = "registry.transferred"
)

// NewMintedEvent returns the canonical payload for a freshly minted deed.
func NewMintedEvent(d *Deed) *types.Event {
	return newDeedEvent(EventTypeMinted, d, nil)
}

// NewApprovedEvent records a transfer approval grant.
func NewApprovedEvent(d *Deed) *types.Event {
	return newDeedEvent(EventTypeApproved, d, nil)
}

// NewTransferredEvent records an ownership transfer.
func NewTransferredEvent(d *Deed, from [20]byte) *types.Event {
	return newDeedEvent(EventTypeTransferred, d, map[string]string{
		"from": hex.EncodeToString(from[:]),
	})
}

func newDeedEvent(eventType string, d *Deed, extra map[string]string) *types.Event {
	attrs := make(map[string]string)
	if d != nil {
		attrs["id"] = strconv.FormatUint(d.ID, 10)
		attrs["owner"] = hex.EncodeToString(d.Owner[:])
		attrs["uri"] = d.URI
		if d.Approved != ([20]byte{}) {
			attrs["approved"] = hex.EncodeToString(d.Approved[:])
		}
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

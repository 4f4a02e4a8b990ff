package registry

import (
	"fmt"
	"strings"
)

// Deed captures the identity and ownership record of a single tokenized
// title. Identity metadata only; balances and sale state live in the escrow
// module.
type Deed struct {
	ID       uint64
	Owner    [20]byte
	Approved [20]byte
	URI      string
}

// Clone returns a copy of the deed so callers can safely mutate the copy
// without affecting the stored instance.
func (d *Deed) Clone() *Deed {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// SanitizeDeed validates the supplied deed record and returns a cloned
// instance with a trimmed URI.
func SanitizeDeed(d *Deed) (*Deed, error) {
	if d == nil {
		return nil, fmt.Errorf("nil deed")
	}
	if d.ID == 0 {
		return nil, fmt.Errorf("deed id required")
	}
	if d.Owner == ([20]byte{}) {
		return nil, fmt.Errorf("deed owner required")
	}
	clone := d.Clone()
	clone.URI = strings.TrimSpace(clone.URI)
	if clone.URI == "" {
		return nil, fmt.Errorf("deed uri required")
	}
	return clone, nil
}

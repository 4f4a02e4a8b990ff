package registry

import (
	"errors"
	"testing"

	"deedvault/core/events"
)

type mockState struct {
	deeds   map[uint64]*Deed
	counter uint64
}

func newMockState() *mockState {
	return &mockState{deeds: make(map[uint64]*Deed)}
}

func (m *mockState) DeedPut(d *Deed) error {
	sanitized, err := SanitizeDeed(d)
	if err != nil {
		return err
	}
	m.deeds[sanitized.ID] = sanitized.Clone()
	return nil
}

func (m *mockState) DeedGet(id uint64) (*Deed, bool) {
	deed, ok := m.deeds[id]
	if !ok {
		return nil, false
	}
	return deed.Clone(), true
}

func (m *mockState) NextDeedID() (uint64, error) {
	m.counter++
	return m.counter, nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var (
	alice = testAddr(0x0A)
	bob   = testAddr(0x0B)
	carol = testAddr(0x0C)
)

func newTestEngine(state *mockState) *Engine {
	engine := NewEngine()
	engine.SetState(state)
	return engine
}

func TestMintSequentialIDs(t *testing.T) {
	engine := newTestEngine(newMockState())

	first, err := engine.Mint(alice, "ipfs://deed-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	second, err := engine.Mint(bob, "ipfs://deed-2")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("ids = %d, %d, want 1, 2", first.ID, second.ID)
	}
	if owner, _ := engine.OwnerOf(1); owner != alice {
		t.Fatalf("owner of 1 = %x", owner)
	}
	if uri, _ := engine.TokenURI(2); uri != "ipfs://deed-2" {
		t.Fatalf("uri of 2 = %q", uri)
	}
}

func TestMintValidation(t *testing.T) {
	engine := newTestEngine(newMockState())
	if _, err := engine.Mint([20]byte{}, "ipfs://deed"); err == nil {
		t.Fatalf("expected error for zero owner")
	}
	if _, err := engine.Mint(alice, "   "); err == nil {
		t.Fatalf("expected error for blank uri")
	}
}

func TestQueriesUnknownDeed(t *testing.T) {
	engine := newTestEngine(newMockState())
	if _, err := engine.OwnerOf(42); !errors.Is(err, ErrDeedNotFound) {
		t.Fatalf("expected ErrDeedNotFound, got %v", err)
	}
	if _, err := engine.ApprovedFor(42); !errors.Is(err, ErrDeedNotFound) {
		t.Fatalf("expected ErrDeedNotFound, got %v", err)
	}
	if _, err := engine.TokenURI(42); !errors.Is(err, ErrDeedNotFound) {
		t.Fatalf("expected ErrDeedNotFound, got %v", err)
	}
}

func TestApproveOwnerOnly(t *testing.T) {
	engine := newTestEngine(newMockState())
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	if _, err := engine.Mint(alice, "ipfs://deed-1"); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := engine.Approve(bob, carol, 1); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := engine.Approve(alice, bob, 1); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved, _ := engine.ApprovedFor(1); approved != bob {
		t.Fatalf("approved = %x, want bob", approved)
	}

	// Re-approving the same transferee is a no-op with no second event.
	before := len(emitter.events)
	if err := engine.Approve(alice, bob, 1); err != nil {
		t.Fatalf("repeat approve: %v", err)
	}
	if len(emitter.events) != before {
		t.Fatalf("repeat approve must not emit")
	}
}

func TestTransferAuthorization(t *testing.T) {
	engine := newTestEngine(newMockState())
	if _, err := engine.Mint(alice, "ipfs://deed-1"); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := engine.Transfer(carol, alice, bob, 1); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("unapproved operator must be rejected, got %v", err)
	}
	if err := engine.Transfer(alice, bob, carol, 1); err == nil {
		t.Fatalf("from must match the current owner")
	}
	if err := engine.Transfer(alice, alice, [20]byte{}, 1); err == nil {
		t.Fatalf("zero recipient must be rejected")
	}

	if err := engine.Transfer(alice, alice, bob, 1); err != nil {
		t.Fatalf("owner transfer: %v", err)
	}
	if owner, _ := engine.OwnerOf(1); owner != bob {
		t.Fatalf("owner = %x, want bob", owner)
	}
}

func TestTransferByApprovedOperatorClearsApproval(t *testing.T) {
	engine := newTestEngine(newMockState())
	if _, err := engine.Mint(alice, "ipfs://deed-1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.Approve(alice, carol, 1); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := engine.Transfer(carol, alice, bob, 1); err != nil {
		t.Fatalf("approved operator transfer: %v", err)
	}
	if owner, _ := engine.OwnerOf(1); owner != bob {
		t.Fatalf("owner = %x, want bob", owner)
	}
	if approved, _ := engine.ApprovedFor(1); approved != ([20]byte{}) {
		t.Fatalf("approval must be cleared after transfer, got %x", approved)
	}
	// The stale approval grants no further authority.
	if err := engine.Transfer(carol, bob, alice, 1); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized after approval cleared, got %v", err)
	}
}

func TestSanitizeDeed(t *testing.T) {
	if _, err := SanitizeDeed(nil); err == nil {
		t.Fatalf("expected error for nil deed")
	}
	if _, err := SanitizeDeed(&Deed{ID: 0, Owner: alice, URI: "x"}); err == nil {
		t.Fatalf("expected error for zero id")
	}
	if _, err := SanitizeDeed(&Deed{ID: 1, URI: "x"}); err == nil {
		t.Fatalf("expected error for zero owner")
	}
	sanitized, err := SanitizeDeed(&Deed{ID: 1, Owner: alice, URI: "  ipfs://deed  "})
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.URI != "ipfs://deed" {
		t.Fatalf("uri = %q, want trimmed", sanitized.URI)
	}
}

package registry

import (
	"errors"
	"fmt"
	"strings"

	"deedvault/core/events"
	"deedvault/core/types"
)

var (
	// ErrDeedNotFound marks a query for an id the registry never minted.
	ErrDeedNotFound = errors.New("registry: deed not found")
	// ErrNotAuthorized marks a transfer or approval by a party that is
	// neither the owner nor the approved transferee.
	ErrNotAuthorized = errors.New("registry: caller not authorized")

	errNilState = errors.New("registry engine: state not configured")
)

type engineState interface {
	DeedPut(*Deed) error
	DeedGet(id uint64) (*Deed, bool)
	NextDeedID() (uint64, error)
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Engine is the title registry: it mints deeds with sequential ids, records
// current ownership and supports owner-granted transfer approval followed by
// operator-driven transfer. The escrow engine consumes it as an injected
// capability and never caches its answers.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

// NewEngine creates a registry engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(registryEvent{evt: event})
}

// Mint creates a new deed owned by the caller and returns it. Ids are
// sequential starting at 1.
func (e *Engine) Mint(owner [20]byte, uri string) (*Deed, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if owner == ([20]byte{}) {
		return nil, fmt.Errorf("registry: owner address required")
	}
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("registry: deed uri required")
	}
	id, err := e.state.NextDeedID()
	if err != nil {
		return nil, err
	}
	deed := &Deed{ID: id, Owner: owner, URI: uri}
	if err := e.state.DeedPut(deed); err != nil {
		return nil, err
	}
	e.emit(NewMintedEvent(deed))
	return deed.Clone(), nil
}

// OwnerOf returns the current owner of the deed.
func (e *Engine) OwnerOf(id uint64) ([20]byte, error) {
	deed, err := e.loadDeed(id)
	if err != nil {
		return [20]byte{}, err
	}
	return deed.Owner, nil
}

// TokenURI returns the metadata URI recorded at mint time.
func (e *Engine) TokenURI(id uint64) (string, error) {
	deed, err := e.loadDeed(id)
	if err != nil {
		return "", err
	}
	return deed.URI, nil
}

// ApprovedFor returns the address approved to transfer the deed, or the
// zero address when no approval stands.
func (e *Engine) ApprovedFor(id uint64) ([20]byte, error) {
	deed, err := e.loadDeed(id)
	if err != nil {
		return [20]byte{}, err
	}
	return deed.Approved, nil
}

// Get returns the full deed record.
func (e *Engine) Get(id uint64) (*Deed, error) {
	return e.loadDeed(id)
}

// Approve grants to a single transfer approval for the deed. Owner only;
// the approval is cleared on the next transfer.
func (e *Engine) Approve(caller, to [20]byte, id uint64) error {
	deed, err := e.loadDeed(id)
	if err != nil {
		return err
	}
	if caller != deed.Owner {
		return fmt.Errorf("%w: only owner may approve transfer of deed %d", ErrNotAuthorized, id)
	}
	if deed.Approved == to {
		return nil
	}
	deed.Approved = to
	if err := e.state.DeedPut(deed); err != nil {
		return err
	}
	e.emit(NewApprovedEvent(deed))
	return nil
}

// Transfer moves ownership of the deed from its current owner to the given
// recipient. The operator must be the owner or the approved transferee, and
// from must match the current owner. Any standing approval is cleared.
func (e *Engine) Transfer(operator, from, to [20]byte, id uint64) error {
	deed, err := e.loadDeed(id)
	if err != nil {
		return err
	}
	if from != deed.Owner {
		return fmt.Errorf("registry: deed %d not owned by transferor", id)
	}
	if to == ([20]byte{}) {
		return fmt.Errorf("registry: transfer recipient required")
	}
	if operator != deed.Owner && operator != deed.Approved {
		return fmt.Errorf("%w: transfer of deed %d", ErrNotAuthorized, id)
	}
	previous := deed.Owner
	deed.Owner = to
	deed.Approved = [20]byte{}
	if err := e.state.DeedPut(deed); err != nil {
		return err
	}
	e.emit(NewTransferredEvent(deed, previous))
	return nil
}

func (e *Engine) loadDeed(id uint64) (*Deed, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	deed, ok := e.state.DeedGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrDeedNotFound, id)
	}
	return deed, nil
}

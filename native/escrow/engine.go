package escrow

import (
	"fmt"
	"math/big"

	"deedvault/core/events"
	"deedvault/core/types"
)

// engineState is the persistence surface the engine mutates. Escrowed funds
// are keyed by asset id so concurrent listings can never observe each
// other's deposits; the aggregate custodial total is maintained alongside.
type engineState interface {
	ListingPut(*Listing) error
	ListingGet(assetID uint64) (*Listing, bool)
	EscrowCredit(assetID uint64, amt *big.Int) error
	EscrowDebit(assetID uint64, amt *big.Int) error
	EscrowBalance(assetID uint64) (*big.Int, error)
	EscrowTotal() (*big.Int, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// DeedRegistry is the external ownership registry the engine consults at
// call time. Registry state is never cached across operations.
type DeedRegistry interface {
	OwnerOf(deedID uint64) ([20]byte, error)
	ApprovedFor(deedID uint64) ([20]byte, error)
	Transfer(from, to [20]byte, deedID uint64) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine owns the sale-lifecycle state machine: role authorization, listing
// lifecycle, fund custody and the finalize/cancel settlement logic. Every
// operation validates all preconditions before its first mutation; the host
// environment serializes mutating calls, so a rejected call leaves no
// partial effect.
type Engine struct {
	state    engineState
	registry DeedRegistry
	emitter  events.Emitter
	vault    [20]byte
	roles    Roles
}

// NewEngine creates an escrow engine for the given role configuration with a
// no-op emitter. The seller is fixed for the life of the instance; the
// remaining roles may be reassigned through the seller-gated setters.
func NewEngine(roles Roles) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		roles:   roles,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the deed registry capability.
func (e *Engine) SetRegistry(registry DeedRegistry) { e.registry = registry }

// SetVault configures the address holding custody of funds and deeds while
// listings are pending.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Roles returns the current role configuration.
func (e *Engine) Roles() Roles { return e.roles }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.registry == nil:
		return errNilRegistry
	case e.vault == ([20]byte{}):
		return errNilVault
	}
	return nil
}

// --- Role administration ---

func (e *Engine) setRole(caller [20]byte, slot *[20]byte, role string, addr [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.roles.Seller {
		return fmt.Errorf("%w: only seller may assign %s", ErrUnauthorized, role)
	}
	if addr == ([20]byte{}) {
		return fmt.Errorf("escrow: %s address required", role)
	}
	*slot = addr
	e.emit(NewRoleUpdatedEvent(role, addr))
	return nil
}

// SetBuyer assigns the engine-level buyer role. Seller only.
func (e *Engine) SetBuyer(caller, addr [20]byte) error {
	return e.setRole(caller, &e.roles.Buyer, "buyer", addr)
}

// SetLender assigns the lender role. Seller only.
func (e *Engine) SetLender(caller, addr [20]byte) error {
	return e.setRole(caller, &e.roles.Lender, "lender", addr)
}

// SetInspector assigns the inspector role. Seller only.
func (e *Engine) SetInspector(caller, addr [20]byte) error {
	return e.setRole(caller, &e.roles.Inspector, "inspector", addr)
}

// --- Listing ---

// List creates the listing for a deed and takes custody of it. The caller
// must be the seller, the registry must report the seller as the current
// owner and the vault as the approved transferee, and the deed must not
// already carry an active listing. A settled deed may be listed again; the
// fresh listing starts with clean approvals, inspection and deposits.
func (e *Engine) List(caller [20]byte, assetID uint64, buyer [20]byte, price, earnest *big.Int) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if caller != e.roles.Seller {
		return nil, fmt.Errorf("%w: only seller may list", ErrUnauthorized)
	}
	if assetID == 0 {
		return nil, fmt.Errorf("%w: asset id required", ErrInvalidListing)
	}
	if buyer == ([20]byte{}) {
		return nil, fmt.Errorf("%w: buyer required", ErrInvalidListing)
	}
	price = cloneBigInt(price)
	earnest = cloneBigInt(earnest)
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: purchase price must be positive", ErrInvalidListing)
	}
	if earnest.Sign() < 0 {
		return nil, fmt.Errorf("%w: earnest amount must be non-negative", ErrInvalidListing)
	}
	if earnest.Cmp(price) > 0 {
		return nil, fmt.Errorf("%w: earnest amount exceeds purchase price", ErrInvalidListing)
	}
	if existing, ok := e.state.ListingGet(assetID); ok && existing.Listed {
		return nil, fmt.Errorf("%w: deed %d already listed", ErrInvalidListing, assetID)
	}
	owner, err := e.registry.OwnerOf(assetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidListing, err)
	}
	if owner != caller {
		return nil, fmt.Errorf("%w: seller does not own deed %d", ErrInvalidListing, assetID)
	}
	approved, err := e.registry.ApprovedFor(assetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidListing, err)
	}
	if approved != e.vault {
		return nil, fmt.Errorf("%w: escrow vault not approved to transfer deed %d", ErrInvalidListing, assetID)
	}
	if err := e.registry.Transfer(owner, e.vault, assetID); err != nil {
		return nil, err
	}
	listing := &Listing{
		AssetID:          assetID,
		Buyer:            buyer,
		PurchasePrice:    price,
		EarnestAmount:    earnest,
		Listed:           true,
		EarnestDeposited: big.NewInt(0),
		BalanceDeposited: big.NewInt(0),
	}
	if err := e.state.ListingPut(listing); err != nil {
		return nil, err
	}
	e.emit(NewListedEvent(listing))
	return listing.Clone(), nil
}

// --- Deposits ---

// DepositEarnest moves earnest funds from the listing's buyer into custody.
// Amounts are unbounded in either direction relative to the agreed earnest;
// FinalizeSale is the sole sufficiency gate.
func (e *Engine) DepositEarnest(caller [20]byte, assetID uint64, amount *big.Int) error {
	listing, err := e.activeListing(assetID)
	if err != nil {
		return err
	}
	if caller != listing.Buyer {
		return fmt.Errorf("%w: only the listing buyer may deposit earnest", ErrUnauthorized)
	}
	if err := e.deposit(listing, caller, amount); err != nil {
		return err
	}
	listing.EarnestDeposited.Add(listing.EarnestDeposited, amount)
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	e.emit(NewEarnestDepositedEvent(listing, caller, amount))
	return nil
}

// DepositBalance moves purchase funds from the lender into custody.
func (e *Engine) DepositBalance(caller [20]byte, assetID uint64, amount *big.Int) error {
	listing, err := e.activeListing(assetID)
	if err != nil {
		return err
	}
	if caller != e.roles.Lender {
		return fmt.Errorf("%w: only lender may deposit balance", ErrUnauthorized)
	}
	if err := e.deposit(listing, caller, amount); err != nil {
		return err
	}
	listing.BalanceDeposited.Add(listing.BalanceDeposited, amount)
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	e.emit(NewBalanceDepositedEvent(listing, caller, amount))
	return nil
}

func (e *Engine) deposit(listing *Listing, from [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("escrow: deposit amount must be positive")
	}
	if err := e.transferValue(from, e.vault, amount); err != nil {
		return err
	}
	return e.state.EscrowCredit(listing.AssetID, amount)
}

// --- Inspection & approval ---

// ApproveInspection marks the listing's inspection as passed. Inspector
// only; idempotent. There is no explicit failure transition: the flag's
// default false stands for both "pending" and "failed" until settlement.
func (e *Engine) ApproveInspection(caller [20]byte, assetID uint64) error {
	listing, err := e.activeListing(assetID)
	if err != nil {
		return err
	}
	if caller != e.roles.Inspector {
		return fmt.Errorf("%w: only inspector may approve inspection", ErrUnauthorized)
	}
	if listing.InspectionPassed {
		return nil
	}
	listing.InspectionPassed = true
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	e.emit(NewInspectionApprovedEvent(listing))
	return nil
}

// ApproveSale records the caller's approval for the listing. Callable by the
// seller, the listing's buyer and the lender; idempotent per identity.
func (e *Engine) ApproveSale(caller [20]byte, assetID uint64) error {
	listing, err := e.activeListing(assetID)
	if err != nil {
		return err
	}
	if caller != e.roles.Seller && caller != listing.Buyer && caller != e.roles.Lender {
		return fmt.Errorf("%w: caller may not approve this sale", ErrUnauthorized)
	}
	if !listing.grantApproval(caller) {
		return nil
	}
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	e.emit(NewSaleApprovedEvent(listing, caller))
	return nil
}

func (e *Engine) fullyApproved(listing *Listing) bool {
	return listing.ApprovedBy(e.roles.Seller) &&
		listing.ApprovedBy(listing.Buyer) &&
		listing.ApprovedBy(e.roles.Lender)
}

// --- Settlement ---

// FinalizeSale settles the listing in favour of the sale: the deed moves
// from custody to the buyer, the purchase price moves to the seller, and any
// deposit surplus is returned to its depositor. All preconditions are
// re-checked against current state and evaluated before the first transfer.
func (e *Engine) FinalizeSale(caller [20]byte, assetID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	listing, err := e.activeListing(assetID)
	if err != nil {
		return err
	}
	if caller != e.roles.Seller {
		return fmt.Errorf("%w: only seller may finalize", ErrUnauthorized)
	}
	if !e.fullyApproved(listing) {
		return fmt.Errorf("%w: sale not approved by all parties", ErrIncompleteSale)
	}
	if !listing.InspectionPassed {
		return fmt.Errorf("%w: inspection not passed", ErrIncompleteSale)
	}
	escrowed, err := e.state.EscrowBalance(assetID)
	if err != nil {
		return err
	}
	price := cloneBigInt(listing.PurchasePrice)
	if escrowed.Cmp(price) < 0 {
		return fmt.Errorf("%w: escrowed funds below purchase price", ErrIncompleteSale)
	}

	// Settlement plan: the price is funded from earnest first, then lender
	// balance. Overages go back to whoever deposited them.
	fromEarnest := cloneBigInt(listing.EarnestDeposited)
	if fromEarnest.Cmp(price) > 0 {
		fromEarnest.Set(price)
	}
	refundBuyer := new(big.Int).Sub(listing.EarnestDeposited, fromEarnest)
	fromLender := new(big.Int).Sub(price, fromEarnest)
	refundLender := new(big.Int).Sub(listing.BalanceDeposited, fromLender)

	if err := e.registry.Transfer(e.vault, listing.Buyer, assetID); err != nil {
		return err
	}
	if err := e.transferValue(e.vault, e.roles.Seller, price); err != nil {
		return err
	}
	if refundBuyer.Sign() > 0 {
		if err := e.transferValue(e.vault, listing.Buyer, refundBuyer); err != nil {
			return err
		}
	}
	if refundLender.Sign() > 0 {
		if err := e.transferValue(e.vault, e.roles.Lender, refundLender); err != nil {
			return err
		}
	}
	if err := e.state.EscrowDebit(assetID, listing.TotalDeposited()); err != nil {
		return err
	}
	return e.closeListing(listing, [20]byte{}, NewSaleFinalizedEvent(listing))
}

// CancelSale unwinds the listing. Callable by the seller or the listing's
// buyer. Fault attribution is evaluated exactly once, before any fund
// movement: with inspection unpassed the seller is at fault and the earnest
// returns to the buyer; with inspection passed the buyer has defaulted and
// the earnest is forwarded to the seller. The lender deposit is returned to
// the lender and the deed reverts to the seller in both branches.
func (e *Engine) CancelSale(caller [20]byte, assetID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	listing, err := e.activeListing(assetID)
	if err != nil {
		return err
	}
	if caller != e.roles.Seller && caller != listing.Buyer {
		return fmt.Errorf("%w: only seller or buyer may cancel", ErrUnauthorized)
	}

	earnestRecipient := listing.Buyer
	if listing.InspectionPassed {
		earnestRecipient = e.roles.Seller
	}

	if err := e.registry.Transfer(e.vault, e.roles.Seller, assetID); err != nil {
		return err
	}
	if listing.EarnestDeposited.Sign() > 0 {
		if err := e.transferValue(e.vault, earnestRecipient, listing.EarnestDeposited); err != nil {
			return err
		}
	}
	if listing.BalanceDeposited.Sign() > 0 {
		if err := e.transferValue(e.vault, e.roles.Lender, listing.BalanceDeposited); err != nil {
			return err
		}
	}
	if err := e.state.EscrowDebit(assetID, listing.TotalDeposited()); err != nil {
		return err
	}
	return e.closeListing(listing, caller, NewSaleCancelledEvent(listing, caller))
}

func (e *Engine) closeListing(listing *Listing, cancelledBy [20]byte, event *types.Event) error {
	listing.Listed = false
	listing.CancelledBy = cancelledBy
	listing.EarnestDeposited = big.NewInt(0)
	listing.BalanceDeposited = big.NewInt(0)
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	e.emit(event)
	return nil
}

// --- Queries ---

// Get returns the stored listing record, settled or not.
func (e *Engine) Get(assetID uint64) (*Listing, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	listing, ok := e.state.ListingGet(assetID)
	if !ok {
		return nil, false
	}
	return listing.Clone(), true
}

// IsListed reports whether the deed carries an active listing.
func (e *Engine) IsListed(assetID uint64) bool {
	listing, ok := e.Get(assetID)
	return ok && listing.Listed
}

// SaleApproved reports whether the identity has approved the listing's sale.
func (e *Engine) SaleApproved(assetID uint64, addr [20]byte) (bool, error) {
	listing, ok := e.Get(assetID)
	if !ok {
		return false, ErrNotListed
	}
	return listing.ApprovedBy(addr), nil
}

// PurchasePrice returns the price agreed at listing time.
func (e *Engine) PurchasePrice(assetID uint64) (*big.Int, error) {
	listing, ok := e.Get(assetID)
	if !ok {
		return nil, ErrNotListed
	}
	return listing.PurchasePrice, nil
}

// EarnestAmount returns the earnest agreed at listing time.
func (e *Engine) EarnestAmount(assetID uint64) (*big.Int, error) {
	listing, ok := e.Get(assetID)
	if !ok {
		return nil, ErrNotListed
	}
	return listing.EarnestAmount, nil
}

// BuyerOf returns the buyer recorded on the listing.
func (e *Engine) BuyerOf(assetID uint64) ([20]byte, error) {
	listing, ok := e.Get(assetID)
	if !ok {
		return [20]byte{}, ErrNotListed
	}
	return listing.Buyer, nil
}

// InspectionPassed reports whether the inspector approved the listing.
func (e *Engine) InspectionPassed(assetID uint64) (bool, error) {
	listing, ok := e.Get(assetID)
	if !ok {
		return false, ErrNotListed
	}
	return listing.InspectionPassed, nil
}

// CancelledBy returns the identity that triggered cancellation, or the zero
// address when the listing was never cancelled.
func (e *Engine) CancelledBy(assetID uint64) ([20]byte, error) {
	listing, ok := e.Get(assetID)
	if !ok {
		return [20]byte{}, ErrNotListed
	}
	return listing.CancelledBy, nil
}

// GetBalance returns the engine's aggregate custodial balance, derived from
// the per-listing ledgers.
func (e *Engine) GetBalance() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.EscrowTotal()
}

// EscrowedFor returns the funds held for a single listing.
func (e *Engine) EscrowedFor(assetID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.EscrowBalance(assetID)
}

func (e *Engine) activeListing(assetID uint64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listing, ok := e.state.ListingGet(assetID)
	if !ok || !listing.Listed {
		return nil, fmt.Errorf("%w: deed %d", ErrNotListed, assetID)
	}
	return listing, nil
}

func (e *Engine) transferValue(from, to [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("escrow: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = fromAcc.Copy()
	toAcc = toAcc.Copy()
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("escrow: insufficient balance")
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

package core

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"deedvault/core/events"
	"deedvault/core/state"
	"deedvault/core/types"
	"deedvault/native/escrow"
	"deedvault/native/registry"
	"deedvault/storage"
)

// Node is the host execution environment for the two engines: it owns the
// state manager, serializes every mutating operation so each one commits as
// a whole against shared state, and binds the registry to the escrow engine
// as an injected capability. There is no partial-success path below this
// point; a rejected operation performed no writes.
type Node struct {
	mu             sync.Mutex
	state          *state.Manager
	escrowEngine   *escrow.Engine
	registryEngine *registry.Engine
	vault          [20]byte
}

// NewNode wires the engines against the given database. The vault address
// holds custody of deeds and funds for pending listings; roles configure the
// escrow engine's transacting parties.
func NewNode(db storage.Database, vault [20]byte, roles escrow.Roles) (*Node, error) {
	if db == nil {
		return nil, errors.New("core: database required")
	}
	if vault == ([20]byte{}) {
		return nil, errors.New("core: vault address required")
	}
	if roles.Seller == ([20]byte{}) {
		return nil, errors.New("core: seller address required")
	}
	st := state.NewManager(db)
	reg := registry.NewEngine()
	reg.SetState(st)
	esc := escrow.NewEngine(roles)
	esc.SetState(st)
	esc.SetVault(vault)
	esc.SetRegistry(&registryOperator{engine: reg, operator: vault})
	return &Node{
		state:          st,
		escrowEngine:   esc,
		registryEngine: reg,
		vault:          vault,
	}, nil
}

// SetEmitter installs the event subscriber on both engines.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.escrowEngine.SetEmitter(emitter)
	n.registryEngine.SetEmitter(emitter)
}

// Vault returns the custody address.
func (n *Node) Vault() [20]byte { return n.vault }

// registryOperator adapts the registry engine to the capability surface the
// escrow engine consumes, acting with the vault's transfer authority.
type registryOperator struct {
	engine   *registry.Engine
	operator [20]byte
}

func (r *registryOperator) OwnerOf(id uint64) ([20]byte, error) {
	return r.engine.OwnerOf(id)
}

func (r *registryOperator) ApprovedFor(id uint64) ([20]byte, error) {
	return r.engine.ApprovedFor(id)
}

func (r *registryOperator) Transfer(from, to [20]byte, id uint64) error {
	return r.engine.Transfer(r.operator, from, to, id)
}

// --- Registry operations ---

func (n *Node) RegistryMint(owner [20]byte, uri string) (*registry.Deed, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registryEngine.Mint(owner, uri)
}

func (n *Node) RegistryApprove(caller, to [20]byte, id uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registryEngine.Approve(caller, to, id)
}

func (n *Node) RegistryOwnerOf(id uint64) ([20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registryEngine.OwnerOf(id)
}

func (n *Node) RegistryDeed(id uint64) (*registry.Deed, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registryEngine.Get(id)
}

// --- Escrow operations ---

func (n *Node) EscrowSetBuyer(caller, addr [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.SetBuyer(caller, addr)
}

func (n *Node) EscrowSetLender(caller, addr [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.SetLender(caller, addr)
}

func (n *Node) EscrowSetInspector(caller, addr [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.SetInspector(caller, addr)
}

func (n *Node) EscrowList(caller [20]byte, assetID uint64, buyer [20]byte, price, earnest *big.Int) (*escrow.Listing, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.List(caller, assetID, buyer, price, earnest)
}

func (n *Node) EscrowDepositEarnest(caller [20]byte, assetID uint64, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.DepositEarnest(caller, assetID, amount)
}

func (n *Node) EscrowDepositBalance(caller [20]byte, assetID uint64, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.DepositBalance(caller, assetID, amount)
}

func (n *Node) EscrowApproveInspection(caller [20]byte, assetID uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.ApproveInspection(caller, assetID)
}

func (n *Node) EscrowApproveSale(caller [20]byte, assetID uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.ApproveSale(caller, assetID)
}

func (n *Node) EscrowFinalize(caller [20]byte, assetID uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.FinalizeSale(caller, assetID)
}

func (n *Node) EscrowCancel(caller [20]byte, assetID uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.CancelSale(caller, assetID)
}

func (n *Node) EscrowGetListing(assetID uint64) (*escrow.Listing, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.Get(assetID)
}

func (n *Node) EscrowIsListed(assetID uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.IsListed(assetID)
}

func (n *Node) EscrowSaleApproved(assetID uint64, addr [20]byte) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.SaleApproved(assetID, addr)
}

func (n *Node) EscrowCancelledBy(assetID uint64) ([20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.CancelledBy(assetID)
}

func (n *Node) EscrowBalance() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.GetBalance()
}

func (n *Node) EscrowedFor(assetID uint64) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.EscrowedFor(assetID)
}

func (n *Node) EscrowRoles() escrow.Roles {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrowEngine.Roles()
}

// --- Account ledger ---

// BankMint credits the address with freshly issued funds. The original
// system draws deposits from the chain's native currency; local deployments
// and tests fund actors through this faucet instead.
func (n *Node) BankMint(addr [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("core: mint amount must be positive")
	}
	account, err := n.state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	account = account.Copy()
	account.Balance.Add(account.Balance, amount)
	return n.state.PutAccount(addr[:], account)
}

// BankBalance returns the account ledger entry for the address.
func (n *Node) BankBalance(addr [20]byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.GetAccount(addr[:])
}

package state

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"deedvault/core/types"
	"deedvault/native/escrow"
	"deedvault/native/registry"
	"deedvault/storage"
)

const (
	accountPrefix       = "acct/"
	deedPrefix          = "deed/"
	deedCounterKey      = "deed/counter"
	listingPrefix       = "listing/"
	escrowBalancePrefix = "escrow/bal/"
	escrowTotalKey      = "escrow/total"
)

// Manager persists module state as JSON records under prefixed keys. It
// implements the state surfaces of both the registry and escrow engines.
// Escrowed funds are segregated per asset id; the aggregate custodial total
// is maintained alongside so the balance query never scans the store.
type Manager struct {
	db storage.Database
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) get(key string, out interface{}) (bool, error) {
	raw, err := m.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) put(key string, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.db.Put([]byte(key), raw)
}

// --- Accounts ---

type accountRecord struct {
	Nonce   uint64 `json:"nonce"`
	Balance string `json:"balance"`
}

func accountKey(addr []byte) string {
	return accountPrefix + hex.EncodeToString(addr)
}

// GetAccount returns the stored account, or a zero-balance account when the
// address has never been seen.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	var rec accountRecord
	ok, err := m.get(accountKey(addr), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	balance, err := parseAmount(rec.Balance)
	if err != nil {
		return nil, fmt.Errorf("state: account %x: %w", addr, err)
	}
	return &types.Account{Nonce: rec.Nonce, Balance: balance}, nil
}

func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	acc := account.Copy()
	if acc.Balance.Sign() < 0 {
		return fmt.Errorf("state: negative account balance")
	}
	return m.put(accountKey(addr), accountRecord{
		Nonce:   acc.Nonce,
		Balance: acc.Balance.String(),
	})
}

// --- Deeds ---

type deedRecord struct {
	ID       uint64 `json:"id"`
	Owner    string `json:"owner"`
	Approved string `json:"approved,omitempty"`
	URI      string `json:"uri"`
}

func deedKey(id uint64) string {
	return deedPrefix + strconv.FormatUint(id, 10)
}

func (m *Manager) DeedPut(d *registry.Deed) error {
	sanitized, err := registry.SanitizeDeed(d)
	if err != nil {
		return err
	}
	rec := deedRecord{
		ID:    sanitized.ID,
		Owner: hex.EncodeToString(sanitized.Owner[:]),
		URI:   sanitized.URI,
	}
	if sanitized.Approved != ([20]byte{}) {
		rec.Approved = hex.EncodeToString(sanitized.Approved[:])
	}
	return m.put(deedKey(sanitized.ID), rec)
}

func (m *Manager) DeedGet(id uint64) (*registry.Deed, bool) {
	var rec deedRecord
	ok, err := m.get(deedKey(id), &rec)
	if err != nil || !ok {
		return nil, false
	}
	owner, err := parseAddress(rec.Owner)
	if err != nil {
		return nil, false
	}
	deed := &registry.Deed{ID: rec.ID, Owner: owner, URI: rec.URI}
	if rec.Approved != "" {
		approved, err := parseAddress(rec.Approved)
		if err != nil {
			return nil, false
		}
		deed.Approved = approved
	}
	return deed, true
}

// NextDeedID increments and returns the mint counter. The first minted deed
// gets id 1.
func (m *Manager) NextDeedID() (uint64, error) {
	var next uint64 = 1
	raw, err := m.db.Get([]byte(deedCounterKey))
	if err == nil {
		if len(raw) != 8 {
			return 0, fmt.Errorf("state: malformed deed counter")
		}
		next = binary.BigEndian.Uint64(raw) + 1
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return 0, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := m.db.Put([]byte(deedCounterKey), buf); err != nil {
		return 0, err
	}
	return next, nil
}

// --- Listings ---

type listingRecord struct {
	AssetID          uint64   `json:"assetId"`
	Buyer            string   `json:"buyer"`
	PurchasePrice    string   `json:"purchasePrice"`
	EarnestAmount    string   `json:"earnestAmount"`
	Listed           bool     `json:"listed"`
	InspectionPassed bool     `json:"inspectionPassed"`
	Approvals        []string `json:"approvals,omitempty"`
	EarnestDeposited string   `json:"earnestDeposited"`
	BalanceDeposited string   `json:"balanceDeposited"`
	CancelledBy      string   `json:"cancelledBy,omitempty"`
}

func listingKey(id uint64) string {
	return listingPrefix + strconv.FormatUint(id, 10)
}

func (m *Manager) ListingPut(l *escrow.Listing) error {
	sanitized, err := escrow.SanitizeListing(l)
	if err != nil {
		return err
	}
	rec := listingRecord{
		AssetID:          sanitized.AssetID,
		Buyer:            hex.EncodeToString(sanitized.Buyer[:]),
		PurchasePrice:    sanitized.PurchasePrice.String(),
		EarnestAmount:    sanitized.EarnestAmount.String(),
		Listed:           sanitized.Listed,
		InspectionPassed: sanitized.InspectionPassed,
		EarnestDeposited: sanitized.EarnestDeposited.String(),
		BalanceDeposited: sanitized.BalanceDeposited.String(),
	}
	for _, approval := range sanitized.Approvals {
		rec.Approvals = append(rec.Approvals, hex.EncodeToString(approval[:]))
	}
	if sanitized.CancelledBy != ([20]byte{}) {
		rec.CancelledBy = hex.EncodeToString(sanitized.CancelledBy[:])
	}
	return m.put(listingKey(sanitized.AssetID), rec)
}

func (m *Manager) ListingGet(assetID uint64) (*escrow.Listing, bool) {
	var rec listingRecord
	ok, err := m.get(listingKey(assetID), &rec)
	if err != nil || !ok {
		return nil, false
	}
	listing, err := decodeListing(rec)
	if err != nil {
		return nil, false
	}
	return listing, true
}

func decodeListing(rec listingRecord) (*escrow.Listing, error) {
	buyer, err := parseAddress(rec.Buyer)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount(rec.PurchasePrice)
	if err != nil {
		return nil, err
	}
	earnest, err := parseAmount(rec.EarnestAmount)
	if err != nil {
		return nil, err
	}
	earnestDeposited, err := parseAmount(rec.EarnestDeposited)
	if err != nil {
		return nil, err
	}
	balanceDeposited, err := parseAmount(rec.BalanceDeposited)
	if err != nil {
		return nil, err
	}
	listing := &escrow.Listing{
		AssetID:          rec.AssetID,
		Buyer:            buyer,
		PurchasePrice:    price,
		EarnestAmount:    earnest,
		Listed:           rec.Listed,
		InspectionPassed: rec.InspectionPassed,
		EarnestDeposited: earnestDeposited,
		BalanceDeposited: balanceDeposited,
	}
	for _, approval := range rec.Approvals {
		addr, err := parseAddress(approval)
		if err != nil {
			return nil, err
		}
		listing.Approvals = append(listing.Approvals, addr)
	}
	if rec.CancelledBy != "" {
		cancelledBy, err := parseAddress(rec.CancelledBy)
		if err != nil {
			return nil, err
		}
		listing.CancelledBy = cancelledBy
	}
	return listing, nil
}

// --- Escrow ledger ---

func escrowBalanceKey(id uint64) string {
	return escrowBalancePrefix + strconv.FormatUint(id, 10)
}

func (m *Manager) escrowAmount(key string) (*big.Int, error) {
	raw, err := m.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	return parseAmount(string(raw))
}

func (m *Manager) putEscrowAmount(key string, amt *big.Int) error {
	return m.db.Put([]byte(key), []byte(amt.String()))
}

// EscrowCredit adds funds to the listing's segregated balance and to the
// aggregate custodial total.
func (m *Manager) EscrowCredit(assetID uint64, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: escrow credit must be non-negative")
	}
	if amt.Sign() == 0 {
		return nil
	}
	balance, err := m.escrowAmount(escrowBalanceKey(assetID))
	if err != nil {
		return err
	}
	total, err := m.escrowAmount(escrowTotalKey)
	if err != nil {
		return err
	}
	if err := m.putEscrowAmount(escrowBalanceKey(assetID), balance.Add(balance, amt)); err != nil {
		return err
	}
	return m.putEscrowAmount(escrowTotalKey, total.Add(total, amt))
}

// EscrowDebit removes funds from the listing's segregated balance and from
// the aggregate total, rejecting overdrafts.
func (m *Manager) EscrowDebit(assetID uint64, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: escrow debit must be non-negative")
	}
	if amt.Sign() == 0 {
		return nil
	}
	balance, err := m.escrowAmount(escrowBalanceKey(assetID))
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("state: escrow balance underflow for asset %d", assetID)
	}
	total, err := m.escrowAmount(escrowTotalKey)
	if err != nil {
		return err
	}
	if total.Cmp(amt) < 0 {
		return fmt.Errorf("state: escrow total underflow")
	}
	if err := m.putEscrowAmount(escrowBalanceKey(assetID), balance.Sub(balance, amt)); err != nil {
		return err
	}
	return m.putEscrowAmount(escrowTotalKey, total.Sub(total, amt))
}

// EscrowBalance returns the funds held for a single listing.
func (m *Manager) EscrowBalance(assetID uint64) (*big.Int, error) {
	return m.escrowAmount(escrowBalanceKey(assetID))
}

// EscrowTotal returns the aggregate custodial balance across all listings.
func (m *Manager) EscrowTotal() (*big.Int, error) {
	return m.escrowAmount(escrowTotalKey)
}

// --- helpers ---

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}

func parseAddress(s string) ([20]byte, error) {
	var out [20]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("malformed address %q", s)
	}
	if len(raw) != 20 {
		return out, fmt.Errorf("address must be 20 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

package core

import (
	"errors"
	"math/big"
	"testing"

	"deedvault/native/escrow"
	"deedvault/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var (
	seller    = testAddr(0x01)
	buyer     = testAddr(0x02)
	lender    = testAddr(0x03)
	inspector = testAddr(0x04)
	vault     = testAddr(0xEE)
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	node, err := NewNode(storage.NewMemDB(), vault, escrow.Roles{
		Seller:    seller,
		Buyer:     buyer,
		Lender:    lender,
		Inspector: inspector,
	})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

// listDeed mints a deed for the seller, approves the vault and lists it.
func listDeed(t *testing.T, node *Node, price, earnest int64) uint64 {
	t.Helper()
	deed, err := node.RegistryMint(seller, "ipfs://deed")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := node.RegistryApprove(seller, node.Vault(), deed.ID); err != nil {
		t.Fatalf("approve vault: %v", err)
	}
	if _, err := node.EscrowList(seller, deed.ID, buyer, big.NewInt(price), big.NewInt(earnest)); err != nil {
		t.Fatalf("list: %v", err)
	}
	return deed.ID
}

func mustBalance(t *testing.T, node *Node, addr [20]byte) *big.Int {
	t.Helper()
	account, err := node.BankBalance(addr)
	if err != nil {
		t.Fatalf("balance of %x: %v", addr, err)
	}
	return account.Balance
}

func TestNodeConstructionValidation(t *testing.T) {
	roles := escrow.Roles{Seller: seller}
	if _, err := NewNode(nil, vault, roles); err == nil {
		t.Fatalf("expected error for nil database")
	}
	if _, err := NewNode(storage.NewMemDB(), [20]byte{}, roles); err == nil {
		t.Fatalf("expected error for zero vault")
	}
	if _, err := NewNode(storage.NewMemDB(), vault, escrow.Roles{}); err == nil {
		t.Fatalf("expected error for missing seller")
	}
}

func TestFullSaleLifecycle(t *testing.T) {
	node := newTestNode(t)
	if err := node.BankMint(buyer, big.NewInt(5)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	if err := node.BankMint(lender, big.NewInt(5)); err != nil {
		t.Fatalf("fund lender: %v", err)
	}

	id := listDeed(t, node, 10, 5)
	if owner, _ := node.RegistryOwnerOf(id); owner != vault {
		t.Fatalf("deed must be in custody, owner %x", owner)
	}

	if err := node.EscrowDepositEarnest(buyer, id, big.NewInt(5)); err != nil {
		t.Fatalf("earnest deposit: %v", err)
	}
	if err := node.EscrowDepositBalance(lender, id, big.NewInt(5)); err != nil {
		t.Fatalf("balance deposit: %v", err)
	}
	if err := node.EscrowApproveInspection(inspector, id); err != nil {
		t.Fatalf("approve inspection: %v", err)
	}
	for _, approver := range [][20]byte{seller, buyer, lender} {
		if err := node.EscrowApproveSale(approver, id); err != nil {
			t.Fatalf("approve sale: %v", err)
		}
	}
	if err := node.EscrowFinalize(seller, id); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if owner, _ := node.RegistryOwnerOf(id); owner != buyer {
		t.Fatalf("deed owner = %x, want buyer", owner)
	}
	if got := mustBalance(t, node, seller); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("seller balance = %s, want 10", got)
	}
	if got := mustBalance(t, node, buyer); got.Sign() != 0 {
		t.Fatalf("buyer balance = %s, want 0", got)
	}
	if got := mustBalance(t, node, lender); got.Sign() != 0 {
		t.Fatalf("lender balance = %s, want 0", got)
	}
	custodial, err := node.EscrowBalance()
	if err != nil || custodial.Sign() != 0 {
		t.Fatalf("custodial balance = %s (err %v), want 0", custodial, err)
	}
	if node.EscrowIsListed(id) {
		t.Fatalf("listing must be closed after finalize")
	}
}

func TestCancelledSaleRefundsDepositors(t *testing.T) {
	node := newTestNode(t)
	if err := node.BankMint(buyer, big.NewInt(5)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	if err := node.BankMint(lender, big.NewInt(5)); err != nil {
		t.Fatalf("fund lender: %v", err)
	}

	id := listDeed(t, node, 10, 5)
	if err := node.EscrowDepositEarnest(buyer, id, big.NewInt(5)); err != nil {
		t.Fatalf("earnest deposit: %v", err)
	}
	if err := node.EscrowDepositBalance(lender, id, big.NewInt(5)); err != nil {
		t.Fatalf("balance deposit: %v", err)
	}

	// No inspection pass: the cancellation refunds the buyer's earnest.
	if err := node.EscrowCancel(seller, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if owner, _ := node.RegistryOwnerOf(id); owner != seller {
		t.Fatalf("deed must revert to seller, owner %x", owner)
	}
	if got := mustBalance(t, node, buyer); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("buyer refund = %s, want 5", got)
	}
	if got := mustBalance(t, node, lender); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("lender refund = %s, want 5", got)
	}
	custodial, err := node.EscrowBalance()
	if err != nil || custodial.Sign() != 0 {
		t.Fatalf("custodial balance = %s (err %v), want 0", custodial, err)
	}
	cancelledBy, err := node.EscrowCancelledBy(id)
	if err != nil || cancelledBy != seller {
		t.Fatalf("cancelledBy = %x (err %v), want seller", cancelledBy, err)
	}
}

func TestListRequiresSeller(t *testing.T) {
	node := newTestNode(t)
	deed, err := node.RegistryMint(seller, "ipfs://deed")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := node.RegistryApprove(seller, node.Vault(), deed.ID); err != nil {
		t.Fatalf("approve vault: %v", err)
	}
	if _, err := node.EscrowList(buyer, deed.ID, buyer, big.NewInt(10), big.NewInt(5)); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if node.EscrowIsListed(deed.ID) {
		t.Fatalf("rejected list must leave no listing")
	}
}

func TestListRequiresVaultApproval(t *testing.T) {
	node := newTestNode(t)
	deed, err := node.RegistryMint(seller, "ipfs://deed")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := node.EscrowList(seller, deed.ID, buyer, big.NewInt(10), big.NewInt(5)); !errors.Is(err, escrow.ErrInvalidListing) {
		t.Fatalf("expected ErrInvalidListing without vault approval, got %v", err)
	}
	if owner, _ := node.RegistryOwnerOf(deed.ID); owner != seller {
		t.Fatalf("deed must stay with seller")
	}
}

func TestBankMintValidation(t *testing.T) {
	node := newTestNode(t)
	if err := node.BankMint(buyer, big.NewInt(0)); err == nil {
		t.Fatalf("expected error for zero mint")
	}
	if err := node.BankMint(buyer, nil); err == nil {
		t.Fatalf("expected error for nil amount")
	}
	if err := node.BankMint(buyer, big.NewInt(7)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := mustBalance(t, node, buyer); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("balance = %s, want 7", got)
	}
}

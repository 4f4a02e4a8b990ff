package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"deedvault/core/types"
	"deedvault/native/escrow"
	"deedvault/native/registry"
	"deedvault/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func TestAccountRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	addr := testAddr(0x01)

	account, err := manager.GetAccount(addr[:])
	require.NoError(t, err)
	require.Equal(t, uint64(0), account.Nonce)
	require.Zero(t, account.Balance.Sign())

	account.Nonce = 3
	account.Balance = big.NewInt(250)
	require.NoError(t, manager.PutAccount(addr[:], account))

	loaded, err := manager.GetAccount(addr[:])
	require.NoError(t, err)
	require.Equal(t, uint64(3), loaded.Nonce)
	require.Zero(t, loaded.Balance.Cmp(big.NewInt(250)))
}

func TestPutAccountRejectsNegativeBalance(t *testing.T) {
	manager := newTestManager(t)
	addr := testAddr(0x01)
	require.Error(t, manager.PutAccount(addr[:], &types.Account{Balance: big.NewInt(-1)}))
	require.Error(t, manager.PutAccount(addr[:], nil))
}

func TestNextDeedIDSequence(t *testing.T) {
	manager := newTestManager(t)
	for want := uint64(1); want <= 3; want++ {
		id, err := manager.NextDeedID()
		require.NoError(t, err)
		require.Equal(t, want, id)
	}
}

func TestDeedRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	deed := &registry.Deed{
		ID:       7,
		Owner:    testAddr(0x01),
		Approved: testAddr(0x02),
		URI:      "ipfs://deed-7",
	}
	require.NoError(t, manager.DeedPut(deed))

	loaded, ok := manager.DeedGet(7)
	require.True(t, ok)
	require.Equal(t, deed.ID, loaded.ID)
	require.Equal(t, deed.Owner, loaded.Owner)
	require.Equal(t, deed.Approved, loaded.Approved)
	require.Equal(t, deed.URI, loaded.URI)

	_, ok = manager.DeedGet(8)
	require.False(t, ok)
}

func TestDeedPutValidates(t *testing.T) {
	manager := newTestManager(t)
	require.Error(t, manager.DeedPut(&registry.Deed{ID: 1, Owner: testAddr(0x01)}))
	require.Error(t, manager.DeedPut(nil))
}

func TestListingRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	listing := &escrow.Listing{
		AssetID:          1,
		Buyer:            testAddr(0x02),
		PurchasePrice:    big.NewInt(10),
		EarnestAmount:    big.NewInt(5),
		Listed:           true,
		InspectionPassed: true,
		Approvals:        [][20]byte{testAddr(0x01), testAddr(0x02)},
		EarnestDeposited: big.NewInt(5),
		BalanceDeposited: big.NewInt(5),
	}
	require.NoError(t, manager.ListingPut(listing))

	loaded, ok := manager.ListingGet(1)
	require.True(t, ok)
	require.Equal(t, listing.AssetID, loaded.AssetID)
	require.Equal(t, listing.Buyer, loaded.Buyer)
	require.Zero(t, loaded.PurchasePrice.Cmp(big.NewInt(10)))
	require.Zero(t, loaded.EarnestAmount.Cmp(big.NewInt(5)))
	require.True(t, loaded.Listed)
	require.True(t, loaded.InspectionPassed)
	require.Equal(t, listing.Approvals, loaded.Approvals)
	require.Zero(t, loaded.EarnestDeposited.Cmp(big.NewInt(5)))
	require.Zero(t, loaded.BalanceDeposited.Cmp(big.NewInt(5)))
	require.Equal(t, [20]byte{}, loaded.CancelledBy)

	_, ok = manager.ListingGet(2)
	require.False(t, ok)
}

func TestListingRoundTripCancelled(t *testing.T) {
	manager := newTestManager(t)
	listing := &escrow.Listing{
		AssetID:          1,
		Buyer:            testAddr(0x02),
		PurchasePrice:    big.NewInt(10),
		EarnestAmount:    big.NewInt(5),
		EarnestDeposited: big.NewInt(0),
		BalanceDeposited: big.NewInt(0),
		CancelledBy:      testAddr(0x01),
	}
	require.NoError(t, manager.ListingPut(listing))

	loaded, ok := manager.ListingGet(1)
	require.True(t, ok)
	require.False(t, loaded.Listed)
	require.Equal(t, testAddr(0x01), loaded.CancelledBy)
}

func TestListingPutValidates(t *testing.T) {
	manager := newTestManager(t)
	require.Error(t, manager.ListingPut(&escrow.Listing{AssetID: 1}))
	require.Error(t, manager.ListingPut(nil))
}

func TestEscrowLedger(t *testing.T) {
	manager := newTestManager(t)

	balance, err := manager.EscrowBalance(1)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	require.NoError(t, manager.EscrowCredit(1, big.NewInt(5)))
	require.NoError(t, manager.EscrowCredit(1, big.NewInt(3)))
	require.NoError(t, manager.EscrowCredit(2, big.NewInt(10)))

	balance, err = manager.EscrowBalance(1)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(8)))

	total, err := manager.EscrowTotal()
	require.NoError(t, err)
	require.Zero(t, total.Cmp(big.NewInt(18)))

	require.NoError(t, manager.EscrowDebit(1, big.NewInt(8)))

	balance, err = manager.EscrowBalance(1)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	total, err = manager.EscrowTotal()
	require.NoError(t, err)
	require.Zero(t, total.Cmp(big.NewInt(10)))
}

func TestEscrowDebitRejectsOverdraft(t *testing.T) {
	manager := newTestManager(t)
	require.NoError(t, manager.EscrowCredit(1, big.NewInt(5)))
	require.NoError(t, manager.EscrowCredit(2, big.NewInt(5)))

	// Asset 1 holds only 5 even though 10 is custodied overall.
	require.Error(t, manager.EscrowDebit(1, big.NewInt(6)))

	balance, err := manager.EscrowBalance(1)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(5)))
}

func TestEscrowRejectsNegativeAmounts(t *testing.T) {
	manager := newTestManager(t)
	require.Error(t, manager.EscrowCredit(1, big.NewInt(-1)))
	require.Error(t, manager.EscrowCredit(1, nil))
	require.Error(t, manager.EscrowDebit(1, big.NewInt(-1)))
}

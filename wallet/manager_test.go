package wallet

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type stubNode struct {
	height uint64
}

func (t *stubNode) GetChainHeight() (uint64, error) {
	return t.height, nil
}

func newTestManager(t *testing.T) *WalletManager {
	db, err := NewLeveldbDatabase(t.TempDir())
	assert.Nil(t, err)

	manager := NewWalletManager(db, &stubNode{height: 100})
	t.Cleanup(manager.Close)

	return manager
}

func TestInitializeNewWallet(t *testing.T) {
	manager := newTestManager(t)

	mnemonic, token, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)
	assert.NotEmpty(t, mnemonic)
	assert.NotEmpty(t, token)
}

func TestDuplicateWallet(t *testing.T) {
	manager := newTestManager(t)

	_, _, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)

	_, _, err = manager.InitializeNewWallet("alice", []byte("other"))
	assert.Equal(t, ErrDuplicateWallet, errors.Cause(err))
}

func TestLogin(t *testing.T) {
	manager := newTestManager(t)

	_, token, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)
	manager.Logout(token)

	token, err = manager.Login("alice", []byte("passphrase"))
	assert.Nil(t, err)
	assert.NotEmpty(t, token)

	_, err = manager.Login("alice", []byte("wrong"))
	assert.Equal(t, ErrInvalidCredentials, errors.Cause(err))

	_, err = manager.Login("nobody", []byte("passphrase"))
	assert.Equal(t, ErrInvalidCredentials, errors.Cause(err))
}

func TestLogoutInvalidatesToken(t *testing.T) {
	manager := newTestManager(t)

	_, token, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)

	_, err = manager.GetWalletSummary(token, 10)
	assert.Nil(t, err)

	manager.Logout(token)
	// logging out again must not panic or error
	manager.Logout(token)

	_, err = manager.GetWalletSummary(token, 10)
	assert.Equal(t, ErrSessionNotFound, errors.Cause(err))
}

func TestWalletSummaryBuckets(t *testing.T) {
	manager := newTestManager(t)

	_, token, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)

	for _, value := range []uint64{100, 200, 300} {
		_, err = manager.Issue(token, value)
		assert.Nil(t, err)
	}

	summary, err := manager.GetWalletSummary(token, 10)
	assert.Nil(t, err)
	assert.Equal(t, uint64(100), summary.LastConfirmedHeight)
	assert.Equal(t, uint64(600), summary.Spendable)
	assert.Equal(t, uint64(0), summary.Locked)
	assert.Equal(t, uint64(0), summary.AwaitingConfirmation)

	// a send locks the inputs and leaves the change awaiting confirmation
	_, err = manager.Send(token, 100, 1, "", SelectionSmallestFirst)
	assert.Nil(t, err)

	summary, err = manager.GetWalletSummary(token, 10)
	assert.Nil(t, err)
	assert.Equal(t, uint64(600), summary.Locked+summary.Spendable)
	assert.NotZero(t, summary.Locked)
	assert.NotZero(t, summary.AwaitingConfirmation)
}

func TestWalletsAreIsolated(t *testing.T) {
	manager := newTestManager(t)

	_, aliceToken, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)
	_, bobToken, err := manager.InitializeNewWallet("bob", []byte("passphrase"))
	assert.Nil(t, err)

	_, err = manager.Issue(aliceToken, 100)
	assert.Nil(t, err)

	aliceSummary, err := manager.GetWalletSummary(aliceToken, 10)
	assert.Nil(t, err)
	assert.Equal(t, uint64(100), aliceSummary.Spendable)

	bobSummary, err := manager.GetWalletSummary(bobToken, 10)
	assert.Nil(t, err)
	assert.Equal(t, uint64(0), bobSummary.Spendable)
}

func TestInfo(t *testing.T) {
	manager := newTestManager(t)

	_, token, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)

	_, err = manager.Issue(token, 100)
	assert.Nil(t, err)

	var buf bytes.Buffer
	err = manager.Info(token, &buf)
	assert.Nil(t, err)
	assert.Contains(t, buf.String(), "Unspent")
}

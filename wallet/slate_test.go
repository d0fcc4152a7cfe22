package wallet

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/grinpp/go-grinwallet/ledger"
)

func TestRound(t *testing.T) {
	manager := newTestManager(t)

	_, sender, err := manager.InitializeNewWallet("sender", []byte("passphrase"))
	assert.Nil(t, err)
	_, receiver, err := manager.InitializeNewWallet("receiver", []byte("passphrase"))
	assert.Nil(t, err)

	_, err = manager.Issue(sender, 1000)
	assert.Nil(t, err)

	slateBytes, err := manager.Send(sender, 500, 1, "here you go", SelectionSmallestFirst)
	assert.Nil(t, err)
	fmt.Println("send " + string(slateBytes))

	responseBytes, ok, err := manager.Receive(receiver, slateBytes, "thanks")
	assert.Nil(t, err)
	assert.True(t, ok)
	fmt.Println("resp " + string(responseBytes))

	txBytes, err := manager.Finalize(sender, responseBytes)
	assert.Nil(t, err)
	fmt.Println("tx   " + string(txBytes))

	// the finalized transaction must validate from the commitments alone
	tx, err := ledger.ValidateTransactionBytes(txBytes)
	assert.Nil(t, err)
	assert.NotNil(t, tx)

	// sender spent 1000, got 1000 - 500 - fee back as change
	senderSummary, err := manager.GetWalletSummary(sender, 10)
	assert.Nil(t, err)
	assert.Equal(t, uint64(0), senderSummary.Locked)
	assert.True(t, senderSummary.Spendable < 500)
	assert.NotZero(t, senderSummary.Spendable)

	// receiver's output becomes spendable on confirmation
	id, err := ParseIDFromSlate(slateBytes)
	assert.Nil(t, err)
	err = manager.Confirm(receiver, id)
	assert.Nil(t, err)

	receiverSummary, err := manager.GetWalletSummary(receiver, 10)
	assert.Nil(t, err)
	assert.Equal(t, uint64(500), receiverSummary.Spendable)
}

func TestSendZeroAmount(t *testing.T) {
	manager := newTestManager(t)

	_, token, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)

	_, err = manager.Send(token, 0, 1, "", SelectionSmallestFirst)
	assert.Equal(t, ErrInvalidAmount, errors.Cause(err))
}

func TestInsufficientFunds(t *testing.T) {
	manager := newTestManager(t)

	_, token, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)

	_, err = manager.Issue(token, 10)
	assert.Nil(t, err)

	_, err = manager.Send(token, 1000, 1, "", SelectionSmallestFirst)
	assert.Equal(t, ErrInsufficientFunds, errors.Cause(err))

	// a failed selection must not lock anything
	summary, err := manager.GetWalletSummary(token, 10)
	assert.Nil(t, err)
	assert.Equal(t, uint64(10), summary.Spendable)
	assert.Equal(t, uint64(0), summary.Locked)
}

func TestReceiveMalformedSlate(t *testing.T) {
	manager := newTestManager(t)

	_, token, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)

	for _, junk := range []string{"", "not json", `{"amount":"0"}`} {
		_, _, err = manager.Receive(token, []byte(junk), "")
		assert.Equal(t, ErrInvalidSlate, errors.Cause(err), junk)
	}
}

func TestReceiveReplay(t *testing.T) {
	manager := newTestManager(t)

	_, sender, err := manager.InitializeNewWallet("sender", []byte("passphrase"))
	assert.Nil(t, err)
	_, receiver, err := manager.InitializeNewWallet("receiver", []byte("passphrase"))
	assert.Nil(t, err)

	_, err = manager.Issue(sender, 1000)
	assert.Nil(t, err)

	slateBytes, err := manager.Send(sender, 500, 1, "", SelectionSmallestFirst)
	assert.Nil(t, err)

	_, ok, err := manager.Receive(receiver, slateBytes, "")
	assert.Nil(t, err)
	assert.True(t, ok)

	// answering the same slate again is refused but is not an error
	_, ok, err = manager.Receive(receiver, slateBytes, "")
	assert.Nil(t, err)
	assert.False(t, ok)
}

func TestFinalizeTamperedSlate(t *testing.T) {
	manager := newTestManager(t)

	_, sender, err := manager.InitializeNewWallet("sender", []byte("passphrase"))
	assert.Nil(t, err)
	_, receiver, err := manager.InitializeNewWallet("receiver", []byte("passphrase"))
	assert.Nil(t, err)

	_, err = manager.Issue(sender, 1000)
	assert.Nil(t, err)

	slateBytes, err := manager.Send(sender, 500, 1, "", SelectionSmallestFirst)
	assert.Nil(t, err)

	responseBytes, ok, err := manager.Receive(receiver, slateBytes, "")
	assert.Nil(t, err)
	assert.True(t, ok)

	// corrupt the receiver's partial signature
	var slate Slate
	err = json.Unmarshal(responseBytes, &slate)
	assert.Nil(t, err)
	tampered := *slate.ParticipantData[1].PartSig
	tamperedBytes := []byte(tampered)
	if tamperedBytes[0] == '0' {
		tamperedBytes[0] = '1'
	} else {
		tamperedBytes[0] = '0'
	}
	tampered = string(tamperedBytes)
	slate.ParticipantData[1].PartSig = &tampered
	tamperedSlateBytes, err := json.Marshal(slate)
	assert.Nil(t, err)

	_, err = manager.Finalize(sender, tamperedSlateBytes)
	assert.Equal(t, ErrInvalidSlate, errors.Cause(err))

	// the failed build must have released the coins
	summary, err := manager.GetWalletSummary(sender, 10)
	assert.Nil(t, err)
	assert.Equal(t, uint64(0), summary.Locked)

	// and the saved slate is gone, so the real response cannot finalize either
	_, err = manager.Finalize(sender, responseBytes)
	assert.Equal(t, ErrInvalidSlate, errors.Cause(err))
}

func TestFinalizeUnknownSlate(t *testing.T) {
	manager := newTestManager(t)

	_, token, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)

	_, err = manager.Finalize(token, []byte(`{"id":"d33ebbd8-6337-4d29-99bc-c2a444b5d8a6"}`))
	assert.Equal(t, ErrInvalidSlate, errors.Cause(err))
}

func TestCancel(t *testing.T) {
	manager := newTestManager(t)

	_, token, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)

	_, err = manager.Issue(token, 1000)
	assert.Nil(t, err)

	slateBytes, err := manager.Send(token, 500, 1, "", SelectionSmallestFirst)
	assert.Nil(t, err)

	summary, err := manager.GetWalletSummary(token, 10)
	assert.Nil(t, err)
	assert.Equal(t, uint64(1000), summary.Locked)

	id, err := ParseIDFromSlate(slateBytes)
	assert.Nil(t, err)

	err = manager.Cancel(token, id)
	assert.Nil(t, err)

	summary, err = manager.GetWalletSummary(token, 10)
	assert.Nil(t, err)
	assert.Equal(t, uint64(0), summary.Locked)
	assert.Equal(t, uint64(1000), summary.Spendable)

	// a canceled build cannot be finalized
	_, err = manager.Finalize(token, slateBytes)
	assert.Equal(t, ErrInvalidSlate, errors.Cause(err))
}

func TestSlateDoesNotLeakSecrets(t *testing.T) {
	manager := newTestManager(t)

	_, token, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)

	_, err = manager.Issue(token, 1000)
	assert.Nil(t, err)

	slateBytes, err := manager.Send(token, 500, 1, "", SelectionSmallestFirst)
	assert.Nil(t, err)

	// the wire format carries only the public protocol fields
	var fields map[string]interface{}
	err = json.Unmarshal(slateBytes, &fields)
	assert.Nil(t, err)
	assert.NotContains(t, fields, "blind")
	assert.NotContains(t, fields, "nonce")
	assert.NotContains(t, fields, "status")
}

func TestIssue(t *testing.T) {
	manager := newTestManager(t)

	_, token, err := manager.InitializeNewWallet("alice", []byte("passphrase"))
	assert.Nil(t, err)

	for _, value := range []uint64{1, 5, 10} {
		issueBytes, err := manager.Issue(token, value)
		assert.Nil(t, err)

		// the issue document must carry a valid range proof
		issue, err := ledger.ValidateIssueBytes(issueBytes)
		assert.Nil(t, err)
		assert.Equal(t, value, issue.Value)
	}
}

package ledger

import (
	"testing"

	"github.com/blockcypher/libgrin/core"
	"github.com/stretchr/testify/assert"
)

func TestKernelSignatureMessage(t *testing.T) {
	plain := core.TxKernel{Features: core.PlainKernel, Fee: 7}
	msg := KernelSignatureMessage(plain)
	assert.Equal(t, 32, len(msg))

	// the message commits to the fee
	otherFee := core.TxKernel{Features: core.PlainKernel, Fee: 8}
	assert.NotEqual(t, msg, KernelSignatureMessage(otherFee))

	// coinbase kernels ignore fee and lock height
	coinbase := core.TxKernel{Features: core.CoinbaseKernel, Fee: 7}
	coinbaseNoFee := core.TxKernel{Features: core.CoinbaseKernel}
	assert.Equal(t, KernelSignatureMessage(coinbase), KernelSignatureMessage(coinbaseNoFee))

	// height locked kernels commit to the lock height
	locked := core.TxKernel{Features: core.HeightLockedKernel, Fee: 7, LockHeight: 100}
	otherHeight := core.TxKernel{Features: core.HeightLockedKernel, Fee: 7, LockHeight: 101}
	assert.NotEqual(t, KernelSignatureMessage(locked), KernelSignatureMessage(otherHeight))
}

func TestValidateTransactionBytesRejectsJunk(t *testing.T) {
	_, err := ValidateTransactionBytes([]byte("not json"))
	assert.Error(t, err)

	// structurally valid json with no kernel fails validation, not parsing
	_, err = ValidateTransactionBytes([]byte("{}"))
	assert.Error(t, err)
}

func TestIsIssue(t *testing.T) {
	issue := core.Transaction{Body: core.TransactionBody{
		Outputs: []core.Output{{Features: core.CoinbaseOutput}},
	}}
	assert.True(t, IsIssue(&issue))

	transfer := core.Transaction{Body: core.TransactionBody{
		Inputs:  []core.Input{{}},
		Outputs: []core.Output{{Features: core.PlainOutput}},
	}}
	assert.False(t, IsIssue(&transfer))
}

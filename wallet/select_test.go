package wallet

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func testOutputs(values ...uint64) []Output {
	outputs := make([]Output, len(values))
	for i, value := range values {
		outputs[i] = Output{Value: value, Status: OutputUnspent}
	}
	return outputs
}

func TestTxFee(t *testing.T) {
	// one input, two outputs, one kernel
	assert.Equal(t, uint64(8), txFee(1, 2, 1, 1))
	// more inputs shrink the weight
	assert.Equal(t, uint64(7), txFee(2, 2, 1, 1))
	// the weight never goes below one
	assert.Equal(t, uint64(1), txFee(100, 2, 1, 1))
	assert.Equal(t, uint64(4), txFee(100, 2, 1, 4))
}

func TestSelectSmallestFirst(t *testing.T) {
	inputs, change, fee, err := selectCoins(testOutputs(500, 10, 100), 50, 1, SelectionSmallestFirst)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(inputs))
	assert.Equal(t, uint64(10), inputs[0].Value)
	assert.Equal(t, uint64(100), inputs[1].Value)
	assert.Equal(t, uint64(110), 50+change+fee)
}

func TestSelectLargestFirst(t *testing.T) {
	inputs, change, fee, err := selectCoins(testOutputs(500, 10, 100), 50, 1, SelectionLargestFirst)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(inputs))
	assert.Equal(t, uint64(500), inputs[0].Value)
	assert.Equal(t, uint64(500), 50+change+fee)
}

func TestSelectAll(t *testing.T) {
	inputs, change, fee, err := selectCoins(testOutputs(500, 10, 100), 50, 1, SelectionAll)
	assert.Nil(t, err)
	assert.Equal(t, 3, len(inputs))
	assert.Equal(t, uint64(610), 50+change+fee)
}

func TestSelectFeeIteration(t *testing.T) {
	// 58 covers the amount but not amount plus fee, so selection must pull
	// in the second coin and recompute the fee for two inputs
	inputs, change, fee, err := selectCoins(testOutputs(58, 50), 50, 1, SelectionSmallestFirst)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(inputs))
	assert.Equal(t, txFee(2, 2, 1, 1), fee)
	assert.Equal(t, uint64(108), 50+change+fee)
}

func TestSelectInsufficientFunds(t *testing.T) {
	_, _, _, err := selectCoins(testOutputs(10, 20), 100, 1, SelectionSmallestFirst)
	assert.Equal(t, ErrInsufficientFunds, errors.Cause(err))

	// enough value but not enough to also cover the fee
	_, _, _, err = selectCoins(testOutputs(50, 50), 100, 1, SelectionSmallestFirst)
	assert.Equal(t, ErrInsufficientFunds, errors.Cause(err))
}

func TestSelectSkipsUnavailable(t *testing.T) {
	outputs := testOutputs(100, 100)
	outputs[0].Status = OutputLocked

	_, _, _, err := selectCoins(outputs, 100, 1, SelectionSmallestFirst)
	assert.Equal(t, ErrInsufficientFunds, errors.Cause(err))
}

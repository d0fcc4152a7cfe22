package wallet

import (
	"sort"

	"github.com/pkg/errors"
)

// Grin-style transaction weight: outputs are the expensive part, inputs
// shrink the chain so they count against the weight, never below one.
func txFee(numInputs, numOutputs, numKernels int, feeBase uint64) uint64 {
	weight := numOutputs*4 + numKernels - numInputs
	if weight < 1 {
		weight = 1
	}
	return feeBase * uint64(weight)
}

// selectCoins picks unspent outputs covering amount plus fee. The fee grows
// with the input count, so selection iterates: each added input raises the
// target and may pull in another input, until the covered sum is stable.
//
// The fee always budgets for two outputs (the receiver's and change) and one
// kernel. selectCoins does not mutate anything; on ErrInsufficientFunds no
// coin has been touched.
func selectCoins(outputs []Output, amount uint64, feeBase uint64, strategy SelectionStrategy) (inputs []Output, change uint64, fee uint64, err error) {
	spendable := make([]Output, 0, len(outputs))
	for _, output := range outputs {
		if output.Status == OutputUnspent {
			spendable = append(spendable, output)
		}
	}

	switch strategy {
	case SelectionLargestFirst:
		sort.Slice(spendable, func(i, j int) bool {
			return spendable[i].Value > spendable[j].Value
		})
	default:
		// smallest first is also the order SelectionAll accumulates in
		sort.Slice(spendable, func(i, j int) bool {
			return spendable[i].Value < spendable[j].Value
		})
	}

	inputs = make([]Output, 0)

	var sumValues uint64
	for _, output := range spendable {
		sumValues += output.Value
		inputs = append(inputs, output)

		fee = txFee(len(inputs), 2, 1, feeBase)
		if sumValues >= amount+fee && strategy != SelectionAll {
			break
		}
	}

	fee = txFee(len(inputs), 2, 1, feeBase)
	if sumValues < amount+fee {
		return nil, 0, 0, errors.Wrapf(ErrInsufficientFunds,
			"have %d, need %d plus fee %d", sumValues, amount, fee)
	}

	change = sumValues - amount - fee

	return inputs, change, fee, nil
}

package wallet

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/blockcypher/libgrin/core"
	"github.com/olegabu/go-secp256k1-zkp"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip32"

	"github.com/grinpp/go-grinwallet/ledger"
)

// Wallet is the per-session handle over one user's coins. It holds the
// secp256k1 context and the bip32 master key derived from the session's
// decrypted seed; both are destroyed when the session ends.
//
// The mutex serializes transaction builds: coin locking is not atomic with
// selection, so at most one Send/Receive/Finalize/Cancel may run against a
// wallet at a time.
type Wallet struct {
	username  string
	db        Database
	masterKey *bip32.Key
	context   *secp256k1.Context

	mu sync.Mutex
}

// NewWallet creates the in-memory handle for a logged-in user.
func NewWallet(username string, seed [32]byte, db Database) (w *Wallet, err error) {
	masterKey, err := masterKeyFromSeed(seed)
	if err != nil {
		return nil, errors.Wrap(err, "cannot derive master key")
	}

	context, err := secp256k1.ContextCreate(secp256k1.ContextBoth)
	if err != nil {
		return nil, errors.Wrap(err, "cannot ContextCreate")
	}

	w = &Wallet{username: username, db: db, masterKey: masterKey, context: context}

	return
}

// Close wipes the key material. The database is shared across wallets and is
// closed by its owner, not here.
func (t *Wallet) Close() {
	if t.masterKey != nil {
		zero(t.masterKey.Key)
		zero(t.masterKey.ChainCode)
		t.masterKey = nil
	}
	if t.context != nil {
		secp256k1.ContextDestroy(t.context)
		t.context = nil
	}
}

// Issue mints a coinbase output into this wallet and returns the issue
// document for the network. Use for testing and for block rewards.
func (t *Wallet) Issue(value uint64) (issueBytes []byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	walletOutput, blind, err := t.createOutput(value, core.CoinbaseOutput)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create output")
	}

	walletOutput.Status = OutputUnspent

	excess, err := secp256k1.Commit(t.context, blind[:], 0, &secp256k1.GeneratorH, &secp256k1.GeneratorG)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create excess")
	}

	err = t.db.PutOutput(t.username, walletOutput)
	if err != nil {
		return nil, errors.Wrap(err, "cannot PutOutput")
	}

	ledgerIssue := ledger.Issue{
		Output: walletOutput.Output,
		Value:  value,
		Kernel: core.TxKernel{
			Features: core.CoinbaseKernel,
			Excess:   excess.String(),
		},
	}

	issueBytes, err = json.Marshal(ledgerIssue)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal ledgerIssue to json")
	}

	return
}

// Confirm applies a network confirmation of a transaction: its inputs owned
// by this wallet become spent, its outputs become unspent.
func (t *Wallet) Confirm(transactionID []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.db.GetTransaction(t.username, transactionID)
	if err != nil {
		return errors.Wrap(err, "cannot GetTransaction")
	}

	tx.Status = TransactionConfirmed

	err = t.db.PutTransaction(t.username, tx)
	if err != nil {
		return errors.Wrap(err, "cannot PutTransaction")
	}

	for _, o := range tx.Body.Inputs {
		err = t.setOutputStatus(o.Commit, OutputSpent)
		if err != nil {
			return err
		}
	}

	for _, o := range tx.Body.Outputs {
		err = t.setOutputStatus(o.Commit, OutputUnspent)
		if err != nil {
			return err
		}
	}

	return nil
}

func (t *Wallet) setOutputStatus(commit string, status OutputStatus) error {
	output, err := t.db.GetOutput(t.username, commit)
	if errors.Cause(err) == ErrNotFound {
		// not my output
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "cannot GetOutput")
	}

	output.Status = status

	err = t.db.PutOutput(t.username, output)
	if err != nil {
		return errors.Wrap(err, "cannot PutOutput")
	}

	return nil
}

// Info renders the wallet's outputs, slates and transactions as tables.
func (t *Wallet) Info(w io.Writer) error {
	outputs, err := t.db.ListOutputs(t.username)
	if err != nil {
		return errors.Wrap(err, "cannot ListOutputs")
	}

	// sort outputs decreasing by child key index
	sort.Slice(outputs, func(i, j int) bool {
		return outputs[i].Index > outputs[j].Index
	})

	outputTable := tablewriter.NewWriter(w)
	outputTable.SetHeader([]string{"value", "status", "features", "commit", "key"})
	outputTable.SetCaption(true, "Outputs")
	for _, output := range outputs {
		outputTable.Append([]string{
			strconv.Itoa(int(output.Value)),
			output.Status.String(),
			output.Features.String(),
			shortCommit(output.Commit),
			strconv.Itoa(int(output.Index)),
		})
	}
	outputTable.Render()

	slates, err := t.db.ListSlates(t.username)
	if err != nil {
		return errors.Wrap(err, "cannot ListSlates")
	}
	slateTable := tablewriter.NewWriter(w)
	slateTable.SetHeader([]string{"id", "status", "amount", "fee", "inputs", "outputs"})
	slateTable.SetCaption(true, "Slates")
	for _, slate := range slates {
		id, _ := slate.ID.MarshalText()

		var inputs, outputs string
		for _, input := range slate.Transaction.Body.Inputs {
			inputs += shortCommit(input.Commit) + " "
		}
		for _, output := range slate.Transaction.Body.Outputs {
			outputs += shortCommit(output.Commit) + " "
		}

		slateTable.Append([]string{
			string(id),
			slate.Status.String(),
			strconv.Itoa(int(slate.Amount)),
			strconv.Itoa(int(slate.Fee)),
			inputs,
			outputs,
		})
	}
	slateTable.Render()

	transactions, err := t.db.ListTransactions(t.username)
	if err != nil {
		return errors.Wrap(err, "cannot ListTransactions")
	}
	transactionTable := tablewriter.NewWriter(w)
	transactionTable.SetHeader([]string{"id", "status", "inputs", "outputs"})
	transactionTable.SetCaption(true, "Transactions")
	for _, tx := range transactions {
		id, _ := tx.ID.MarshalText()

		var inputs, outputs string
		for _, input := range tx.Transaction.Body.Inputs {
			inputs += shortCommit(input.Commit) + " "
		}
		for _, output := range tx.Transaction.Body.Outputs {
			outputs += shortCommit(output.Commit) + " "
		}

		transactionTable.Append([]string{string(id), tx.Status.String(), inputs, outputs})
	}
	transactionTable.Render()

	return nil
}

func shortCommit(commit string) string {
	if len(commit) < 4 {
		return commit
	}
	return commit[0:4]
}

package wallet

import (
	"encoding/json"
	"fmt"

	"github.com/blockcypher/libgrin/core"
	"github.com/blockcypher/libgrin/libwallet"
	"github.com/pkg/errors"

	"github.com/grinpp/go-grinwallet/ledger"
)

// Database is the storage collaborator. A single store holds any number of
// wallets; every operation is scoped to a username.
type Database interface {
	CreateWallet(username string, seed EncryptedSeed) error
	GetEncryptedSeed(username string) (seed EncryptedSeed, err error)
	PutOutput(username string, output Output) error
	GetOutput(username string, commit string) (output Output, err error)
	ListOutputs(username string) (outputs []Output, err error)
	PutSenderSlate(username string, slate *SavedSlate) error
	GetSenderSlate(username string, id []byte) (slate *SavedSlate, err error)
	DeleteSenderSlate(username string, id []byte) error
	PutReceiverSlate(username string, slate *SavedSlate) error
	HasReceiverSlate(username string, id []byte) (exists bool, err error)
	ListSlates(username string) (slates []SavedSlate, err error)
	PutTransaction(username string, tx Transaction) error
	GetTransaction(username string, id []byte) (tx Transaction, err error)
	ListTransactions(username string) (txs []Transaction, err error)
	NextIndex(username string) (uint32, error)
	Close()
}

// Output is a coin owned by a wallet. Its blinding factor is never stored;
// it is re-derived from the session's master key via the child key index.
type Output struct {
	core.Output
	Index  uint32       `json:"index"`
	Value  uint64       `json:"value"`
	Status OutputStatus `json:"status,omitempty"`
}

type OutputStatus int

const (
	// OutputUnconfirmed is a freshly created output not yet usable: a change
	// output before finalization or a received output before the network
	// confirmed its transaction.
	OutputUnconfirmed OutputStatus = iota
	// OutputUnspent is spendable.
	OutputUnspent
	// OutputLocked is reserved by an in-flight transaction build.
	OutputLocked
	// OutputSpent was consumed by a finalized transaction.
	OutputSpent
)

func (t OutputStatus) String() string {
	switch t {
	case OutputUnconfirmed:
		return "Unconfirmed"
	case OutputUnspent:
		return "Unspent"
	case OutputLocked:
		return "Locked"
	case OutputSpent:
		return "Spent"
	default:
		return fmt.Sprintf("%d", int(t))
	}
}

// Slate is the protocol message passed between sender and receiver while a
// transaction is under construction. The embedded libwallet slate carries
// explicit version info so the format can evolve without breaking older
// wallets.
type Slate struct {
	libwallet.Slate
}

// ParseIDFromSlate extracts the slate ID without touching any other field.
func ParseIDFromSlate(slateBytes []byte) (ID []byte, err error) {
	slate := Slate{}
	err = json.Unmarshal(slateBytes, &slate)
	if err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal slate from json")
	}
	id, err := slate.ID.MarshalText()
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal from uuid")
	}
	return id, nil
}

// SavedSlate is a slate persisted locally together with the party's secret
// blinding factor and nonce. It never leaves the wallet; only the embedded
// Slate is serialized for transport.
type SavedSlate struct {
	Slate
	Blind  [32]byte    `json:"blind,omitempty"`
	Nonce  [32]byte    `json:"nonce,omitempty"`
	Status SlateStatus `json:"status,omitempty"`
}

type SlateStatus int

const (
	SlateSent SlateStatus = iota
	SlateResponded
	SlateFinalized
	SlateCanceled
)

func (t SlateStatus) String() string {
	switch t {
	case SlateSent:
		return "Sent"
	case SlateResponded:
		return "Responded"
	case SlateFinalized:
		return "Finalized"
	case SlateCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("%d", int(t))
	}
}

type Transaction struct {
	ledger.Transaction
	Status TransactionStatus `json:"status,omitempty"`
}

type TransactionStatus int

const (
	TransactionUnconfirmed TransactionStatus = iota
	TransactionConfirmed
)

func (t TransactionStatus) String() string {
	switch t {
	case TransactionUnconfirmed:
		return "Unconfirmed"
	case TransactionConfirmed:
		return "Confirmed"
	default:
		return fmt.Sprintf("%d", int(t))
	}
}

// SelectionStrategy determines the order coins are considered in when
// covering amount plus fee.
type SelectionStrategy int

const (
	// SelectionSmallestFirst consolidates small coins first.
	SelectionSmallestFirst SelectionStrategy = iota
	// SelectionLargestFirst minimizes the input count.
	SelectionLargestFirst
	// SelectionAll spends every unspent coin, sweeping dust into change.
	SelectionAll
)

// WalletSummary is a point-in-time view of a wallet's funds bucketed by
// output status.
type WalletSummary struct {
	LastConfirmedHeight  uint64 `json:"last_confirmed_height"`
	MinimumConfirmations uint64 `json:"minimum_confirmations"`
	AwaitingConfirmation uint64 `json:"amount_awaiting_confirmation"`
	Immature             uint64 `json:"amount_immature"`
	Locked               uint64 `json:"amount_locked"`
	Spendable            uint64 `json:"amount_currently_spendable"`
}

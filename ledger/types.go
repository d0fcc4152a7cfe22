package ledger

import (
	"github.com/blockcypher/libgrin/core"
	"github.com/google/uuid"
)

type Transaction struct {
	core.Transaction
	ID uuid.UUID `json:"id,omitempty"`
}

// Issue is a coinbase-style transaction that mints an output without inputs.
// Used to fund test wallets; a production chain would only accept these from
// block rewards.
type Issue struct {
	Output core.Output   `json:"output"`
	Value  uint64        `json:"value"`
	Kernel core.TxKernel `json:"kernel,omitempty"`
}

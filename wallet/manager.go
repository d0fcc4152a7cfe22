package wallet

import (
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NodeClient is the view of the node a wallet needs. The node package
// provides an implementation over the chain RPC.
type NodeClient interface {
	GetChainHeight() (uint64, error)
}

// WalletManager ties the store, the sessions and the node together behind
// one API. Everything below Login requires a session token.
type WalletManager struct {
	db       Database
	node     NodeClient
	sessions *SessionManager
}

func NewWalletManager(db Database, node NodeClient) *WalletManager {
	return &WalletManager{
		db:       db,
		node:     node,
		sessions: NewSessionManager(db),
	}
}

// Close logs out all sessions and closes the store.
func (m *WalletManager) Close() {
	m.sessions.Close()
	m.db.Close()
}

// InitializeNewWallet creates a wallet for the username: random seed,
// encrypted with the password, persisted, and a session opened right away.
// The mnemonic is the only recovery path and is shown to the user once.
func (m *WalletManager) InitializeNewWallet(username string, password []byte) (mnemonic string, token SessionToken, err error) {
	seed, err := NewMasterSeed()
	if err != nil {
		return "", "", errors.Wrap(err, "cannot create master seed")
	}

	encryptedSeed, err := EncryptWalletSeed(seed, password)
	if err != nil {
		return "", "", errors.Wrap(err, "cannot encrypt seed")
	}

	err = m.db.CreateWallet(username, encryptedSeed)
	if err != nil {
		return "", "", err
	}

	mnemonic, err = CreateMnemonic(seed)
	if err != nil {
		return "", "", errors.Wrap(err, "cannot create mnemonic")
	}

	token, err = m.sessions.LoginWithSeed(username, seed)
	if err != nil {
		return "", "", err
	}

	log.WithField("username", username).Info("initialized new wallet")

	return mnemonic, token, nil
}

func (m *WalletManager) Login(username string, password []byte) (SessionToken, error) {
	token, err := m.sessions.Login(username, password)
	if err != nil {
		log.WithField("username", username).Debug("login failed")
		return "", err
	}

	log.WithField("username", username).Info("logged in")

	return token, nil
}

func (m *WalletManager) Logout(token SessionToken) {
	m.sessions.Logout(token)
}

// GetWalletSummary buckets the wallet's coins by status at the current chain
// height. Unspent coins count as spendable regardless of depth; depth
// gating, if wanted, belongs to the caller via MinimumConfirmations.
func (m *WalletManager) GetWalletSummary(token SessionToken, minimumConfirmations uint64) (summary WalletSummary, err error) {
	wallet, err := m.sessions.GetWallet(token)
	if err != nil {
		return WalletSummary{}, err
	}

	height, err := m.node.GetChainHeight()
	if err != nil {
		return WalletSummary{}, errors.Wrap(err, "cannot get chain height")
	}

	outputs, err := wallet.db.ListOutputs(wallet.username)
	if err != nil {
		return WalletSummary{}, errors.Wrap(err, "cannot ListOutputs")
	}

	summary = WalletSummary{
		LastConfirmedHeight:  height,
		MinimumConfirmations: minimumConfirmations,
	}

	for _, output := range outputs {
		switch output.Status {
		case OutputUnspent:
			summary.Spendable += output.Value
		case OutputLocked:
			summary.Locked += output.Value
		case OutputUnconfirmed:
			summary.AwaitingConfirmation += output.Value
		}
	}

	return summary, nil
}

// Send starts a transaction and returns the slate to pass to the receiver.
func (m *WalletManager) Send(token SessionToken, amount uint64, feeBase uint64, message string, strategy SelectionStrategy) ([]byte, error) {
	wallet, err := m.sessions.GetWallet(token)
	if err != nil {
		return nil, err
	}

	slateBytes, err := wallet.BuildSendSlate(amount, feeBase, message, strategy)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"username": wallet.username, "amount": amount}).Info("built send slate")

	return slateBytes, nil
}

// Receive answers a sender's slate. ok false means the slate was already
// answered before and no new response was produced.
func (m *WalletManager) Receive(token SessionToken, slateBytes []byte, message string) (responseBytes []byte, ok bool, err error) {
	wallet, err := m.sessions.GetWallet(token)
	if err != nil {
		return nil, false, err
	}

	responseBytes, ok, err = wallet.AddReceiverData(slateBytes, message)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		log.WithField("username", wallet.username).Warn("slate already answered")
		return nil, false, nil
	}

	log.WithField("username", wallet.username).Info("answered slate")

	return responseBytes, true, nil
}

// Finalize completes a transaction from the receiver's response and returns
// it ready for broadcast.
func (m *WalletManager) Finalize(token SessionToken, responseBytes []byte) ([]byte, error) {
	wallet, err := m.sessions.GetWallet(token)
	if err != nil {
		return nil, err
	}

	txBytes, err := wallet.Finalize(responseBytes)
	if err != nil {
		return nil, err
	}

	log.WithField("username", wallet.username).Info("finalized transaction")

	return txBytes, nil
}

// Cancel aborts a send in progress and unlocks its coins.
func (m *WalletManager) Cancel(token SessionToken, id []byte) error {
	wallet, err := m.sessions.GetWallet(token)
	if err != nil {
		return err
	}

	return wallet.Cancel(id)
}

// Issue mints a coinbase output, for funding test wallets.
func (m *WalletManager) Issue(token SessionToken, value uint64) ([]byte, error) {
	wallet, err := m.sessions.GetWallet(token)
	if err != nil {
		return nil, err
	}

	return wallet.Issue(value)
}

// Confirm applies a network confirmation of a transaction to the wallet.
func (m *WalletManager) Confirm(token SessionToken, transactionID []byte) error {
	wallet, err := m.sessions.GetWallet(token)
	if err != nil {
		return err
	}

	return wallet.Confirm(transactionID)
}

// Info renders the wallet's contents as tables.
func (m *WalletManager) Info(token SessionToken, w io.Writer) error {
	wallet, err := m.sessions.GetWallet(token)
	if err != nil {
		return err
	}

	return wallet.Info(w)
}

package wallet

import (
	"encoding/hex"
	"sync"

	"github.com/olegabu/go-secp256k1-zkp"
	"github.com/pkg/errors"
)

// SessionToken identifies a logged-in wallet. Tokens are random 32-byte
// values and are never reused.
type SessionToken string

type session struct {
	username string
	seed     [32]byte
	wallet   *Wallet
}

// SessionManager maps tokens to decrypted wallet handles. Seeds exist in
// memory only between Login and Logout.
type SessionManager struct {
	db       Database
	sessions map[SessionToken]*session

	mu sync.Mutex
}

func NewSessionManager(db Database) *SessionManager {
	return &SessionManager{
		db:       db,
		sessions: make(map[SessionToken]*session),
	}
}

// Login decrypts the user's seed with the password and opens a session.
// An unknown username and a wrong password return the same error.
func (m *SessionManager) Login(username string, password []byte) (SessionToken, error) {
	encryptedSeed, err := m.db.GetEncryptedSeed(username)
	if err != nil {
		return "", errors.Wrap(ErrInvalidCredentials, "cannot load seed")
	}

	seed, err := DecryptWalletSeed(encryptedSeed, password)
	if err != nil {
		return "", err
	}

	return m.LoginWithSeed(username, seed)
}

// LoginWithSeed opens a session for an already decrypted seed. Used right
// after wallet initialization when the seed is still at hand.
func (m *SessionManager) LoginWithSeed(username string, seed [32]byte) (SessionToken, error) {
	wallet, err := NewWallet(username, seed, m.db)
	if err != nil {
		return "", errors.Wrap(err, "cannot create wallet")
	}

	tokenBytes := secp256k1.Random256()
	token := SessionToken(hex.EncodeToString(tokenBytes[:]))

	m.mu.Lock()
	m.sessions[token] = &session{username: username, seed: seed, wallet: wallet}
	m.mu.Unlock()

	return token, nil
}

// Logout wipes the session's key material and forgets the token. Logging
// out twice is not an error.
func (m *SessionManager) Logout(token SessionToken) {
	m.mu.Lock()
	s, found := m.sessions[token]
	delete(m.sessions, token)
	m.mu.Unlock()

	if !found {
		return
	}

	zero(s.seed[:])
	s.wallet.Close()
}

// GetWallet resolves a token to its wallet handle.
func (m *SessionManager) GetWallet(token SessionToken) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, found := m.sessions[token]
	if !found {
		return nil, errors.Wrapf(ErrSessionNotFound, "token %s", string(token))
	}

	return s.wallet, nil
}

// GetSeed returns the decrypted seed of a live session.
func (m *SessionManager) GetSeed(token SessionToken) ([32]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, found := m.sessions[token]
	if !found {
		return [32]byte{}, errors.Wrapf(ErrSessionNotFound, "token %s", string(token))
	}

	return s.seed, nil
}

// Close logs out every live session.
func (m *SessionManager) Close() {
	m.mu.Lock()
	tokens := make([]SessionToken, 0, len(m.sessions))
	for token := range m.sessions {
		tokens = append(tokens, token)
	}
	m.mu.Unlock()

	for _, token := range tokens {
		m.Logout(token)
	}
}

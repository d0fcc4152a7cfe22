package wallet

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestSessionTokensAreUnique(t *testing.T) {
	db, err := NewLeveldbDatabase(t.TempDir())
	assert.Nil(t, err)
	defer db.Close()

	sessions := NewSessionManager(db)
	defer sessions.Close()

	seed, err := NewMasterSeed()
	assert.Nil(t, err)

	seen := make(map[SessionToken]bool)
	for i := 0; i < 10; i++ {
		token, err := sessions.LoginWithSeed("alice", seed)
		assert.Nil(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestSessionGetSeed(t *testing.T) {
	db, err := NewLeveldbDatabase(t.TempDir())
	assert.Nil(t, err)
	defer db.Close()

	sessions := NewSessionManager(db)
	defer sessions.Close()

	seed, err := NewMasterSeed()
	assert.Nil(t, err)

	token, err := sessions.LoginWithSeed("alice", seed)
	assert.Nil(t, err)

	got, err := sessions.GetSeed(token)
	assert.Nil(t, err)
	assert.Equal(t, seed, got)

	sessions.Logout(token)

	_, err = sessions.GetSeed(token)
	assert.Equal(t, ErrSessionNotFound, errors.Cause(err))
	_, err = sessions.GetWallet(token)
	assert.Equal(t, ErrSessionNotFound, errors.Cause(err))
}

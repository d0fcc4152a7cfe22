package wallet

import (
	"crypto/sha256"

	"github.com/olegabu/go-secp256k1-zkp"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip32"
)

// masterKeyFromSeed derives the wallet's bip32 master key from the decrypted
// master seed. The key lives only as long as the session that owns it.
func masterKeyFromSeed(seed [32]byte) (masterKey *bip32.Key, err error) {
	masterKey, err = bip32.NewMasterKey(seed[:])
	if err != nil {
		return nil, errors.Wrap(err, "cannot get NewMasterKey from seed")
	}
	return
}

// newSecret derives the next child key secret, advancing the wallet's
// persistent key index so blinding factors are never reused.
func (t *Wallet) newSecret() (secret [32]byte, index uint32, err error) {
	index, err = t.db.NextIndex(t.username)
	if err != nil {
		return [32]byte{}, 0, errors.Wrap(err, "cannot get NextIndex from db")
	}

	secret, err = t.secret(index)
	if err != nil {
		return [32]byte{}, 0, errors.Wrap(err, "cannot get secret for index")
	}

	return
}

// secret re-derives the blinding factor for a stored output from its child
// key index. Outputs never persist their blinds.
func (t *Wallet) secret(index uint32) (secret [32]byte, err error) {
	childKey, err := t.masterKey.NewChildKey(index)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "cannot get NewChildKey")
	}

	childKeyBytes, err := childKey.Serialize()
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "cannot Serialize childKey")
	}

	hash := sha256.Sum256(childKeyBytes)
	copy(secret[:], hash[:])
	zero(childKeyBytes)

	return
}

// nonce returns a fresh signing nonce that is safe against the aggsig
// related-nonce attacks.
func (t *Wallet) nonce() (rnd32 [32]byte, err error) {
	seed32 := secp256k1.Random256()
	rnd32, err = secp256k1.AggsigGenerateSecureNonce(t.context, seed32[:])
	return
}

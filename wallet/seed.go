package wallet

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/olegabu/go-secp256k1-zkp"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12
)

// EncryptedSeed is the persisted form of a master seed: AES-256-GCM
// ciphertext under a scrypt password-derived key. Created once at wallet
// initialization and immutable afterwards.
type EncryptedSeed struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// NewMasterSeed generates a fresh random 32 byte master seed.
func NewMasterSeed() (seed [32]byte, err error) {
	seed = secp256k1.Random256()
	return
}

// EncryptWalletSeed encrypts a master seed under a password. The GCM tag
// authenticates the ciphertext so decryption with a wrong password fails
// rather than yielding garbage.
func EncryptWalletSeed(seed [32]byte, password []byte) (enc EncryptedSeed, err error) {
	salt := secp256k1.Random256()
	nonce32 := secp256k1.Random256()

	enc.Salt = salt[:saltLen]
	enc.Nonce = nonce32[:nonceLen]

	key, err := scrypt.Key(password, enc.Salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return EncryptedSeed{}, errors.Wrap(err, "cannot derive key from password")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return EncryptedSeed{}, errors.Wrap(err, "cannot create cipher")
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return EncryptedSeed{}, errors.Wrap(err, "cannot create GCM")
	}

	enc.Ciphertext = aesGCM.Seal(nil, enc.Nonce, seed[:], nil)

	return enc, nil
}

// DecryptWalletSeed recovers the master seed. Any failure, including a wrong
// password, surfaces as ErrInvalidCredentials without naming the cause.
func DecryptWalletSeed(enc EncryptedSeed, password []byte) (seed [32]byte, err error) {
	key, err := scrypt.Key(password, enc.Salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "cannot derive key from password")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "cannot create cipher")
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "cannot create GCM")
	}

	plaintext, err := aesGCM.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil || len(plaintext) != 32 {
		return [32]byte{}, ErrInvalidCredentials
	}

	copy(seed[:], plaintext)
	zero(plaintext)

	return seed, nil
}

// CreateMnemonic renders the seed as a bip39 backup phrase. Consumed once at
// wallet creation to hand the user a human readable backup.
func CreateMnemonic(seed [32]byte) (mnemonic string, err error) {
	mnemonic, err = bip39.NewMnemonic(seed[:])
	if err != nil {
		return "", errors.Wrap(err, "cannot get NewMnemonic from seed")
	}
	return
}

// SeedFromMnemonic recovers the master seed from a backup phrase.
func SeedFromMnemonic(mnemonic string) (seed [32]byte, err error) {
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "cannot get entropy from mnemonic")
	}
	if len(entropy) != 32 {
		return [32]byte{}, errors.New("mnemonic does not encode a 32 byte seed")
	}
	copy(seed[:], entropy)
	return
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

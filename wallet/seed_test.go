package wallet

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestSeedEncryptDecrypt(t *testing.T) {
	seed, err := NewMasterSeed()
	assert.Nil(t, err)

	encrypted, err := EncryptWalletSeed(seed, []byte("passphrase"))
	assert.Nil(t, err)
	assert.NotContains(t, string(encrypted.Ciphertext), string(seed[:]))

	decrypted, err := DecryptWalletSeed(encrypted, []byte("passphrase"))
	assert.Nil(t, err)
	assert.Equal(t, seed, decrypted)
}

func TestSeedDecryptWrongPassword(t *testing.T) {
	seed, err := NewMasterSeed()
	assert.Nil(t, err)

	encrypted, err := EncryptWalletSeed(seed, []byte("passphrase"))
	assert.Nil(t, err)

	_, err = DecryptWalletSeed(encrypted, []byte("wrong"))
	assert.Equal(t, ErrInvalidCredentials, errors.Cause(err))
}

func TestSeedDecryptTamperedCiphertext(t *testing.T) {
	seed, err := NewMasterSeed()
	assert.Nil(t, err)

	encrypted, err := EncryptWalletSeed(seed, []byte("passphrase"))
	assert.Nil(t, err)

	encrypted.Ciphertext[0] ^= 0xff

	_, err = DecryptWalletSeed(encrypted, []byte("passphrase"))
	assert.Equal(t, ErrInvalidCredentials, errors.Cause(err))
}

func TestSeedEncryptSaltsDiffer(t *testing.T) {
	seed, err := NewMasterSeed()
	assert.Nil(t, err)

	first, err := EncryptWalletSeed(seed, []byte("passphrase"))
	assert.Nil(t, err)
	second, err := EncryptWalletSeed(seed, []byte("passphrase"))
	assert.Nil(t, err)

	assert.NotEqual(t, first.Salt, second.Salt)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestMnemonicRoundTrip(t *testing.T) {
	seed, err := NewMasterSeed()
	assert.Nil(t, err)

	mnemonic, err := CreateMnemonic(seed)
	assert.Nil(t, err)
	assert.NotEmpty(t, mnemonic)

	recovered, err := SeedFromMnemonic(mnemonic)
	assert.Nil(t, err)
	assert.Equal(t, seed, recovered)
}

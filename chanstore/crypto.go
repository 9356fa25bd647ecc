package chanstore

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/knocte/gwallet/keychain"
)

// baseEncryptionKeyLoc is the KeyLocator that we'll use to derive the base
// encryption key used for encrypting channel records at rest. We derive the
// actual cipher key from it rather than using a raw key directly, as we
// assume we can't obtain raw private keys from every key ring
// implementation.
var baseEncryptionKeyLoc = keychain.KeyLocator{
	Family: keychain.KeyFamilyBaseEncryption,
	Index:  0,
}

// genEncryptionKey derives the key used to encrypt a channel record. The key
// is the SHA-256 of the compressed base key we get from the ring:
//
//	key = SHA256(baseKey)
func genEncryptionKey(keyRing keychain.KeyRing) ([]byte, error) {
	baseKey, err := keyRing.DeriveKey(baseEncryptionKeyLoc)
	if err != nil {
		return nil, err
	}

	encryptionKey := sha256.Sum256(
		baseKey.PubKey.SerializeCompressed(),
	)

	return encryptionKey[:], nil
}

// encryptPayload encrypts the payload with a 24-byte-nonce chachapoly AEAD
// instance. The randomized nonce is prepended to the final blob and doubles
// as the associated data, so records can be decrypted without any additional
// context.
func encryptPayload(payload []byte, keyRing keychain.KeyRing) ([]byte,
	error) {

	encryptionKey, err := genEncryptionKey(keyRing)
	if err != nil {
		return nil, err
	}

	// Note that we use NewX, not New, as the latter requires a 12-byte
	// nonce, not a 24-byte nonce.
	cipher, err := chacha20poly1305.NewX(encryptionKey)
	if err != nil {
		return nil, err
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}

	ciphertext := cipher.Seal(nonce[:], nonce[:], payload, nonce[:])

	return ciphertext, nil
}

// decryptPayload reverses encryptPayload. Decryption fails if the blob is
// too short to carry a nonce, or if the AEAD rejects the ciphertext (wrong
// key, mutated contents).
func decryptPayload(ciphertext []byte, keyRing keychain.KeyRing) ([]byte,
	error) {

	encryptionKey, err := genEncryptionKey(keyRing)
	if err != nil {
		return nil, err
	}

	cipher, err := chacha20poly1305.NewX(encryptionKey)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("record blob too short: %v bytes",
			len(ciphertext))
	}

	nonce := ciphertext[:chacha20poly1305.NonceSizeX]
	payload, err := cipher.Open(
		nil, nonce, ciphertext[chacha20poly1305.NonceSizeX:], nonce,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt record: %w", err)
	}

	return payload, nil
}

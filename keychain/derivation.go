package keychain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	// BIP0043Purpose is the "purpose" value that we'll use for our key
	// derivation scheme. All keys are expected to be derived from this
	// purpose, then the particular coin type of the chain where the keys
	// are to be used. Slightly adhering to BIP0043 allows us to not
	// deviate too far from a widely used standard, and also fits into
	// existing implementations of the BIP's template.
	BIP0043Purpose = 1017
)

// KeyFamily represents a "family" of keys that will be used within various
// contracts created by the channel machinery. These families are meant to be
// distinct branches within the HD key chain backed by a channel's seed.
// Usage of key families within the interface below is strict in order to
// promote integrability and the ability to restore all keys given the seed
// stored within the channel's persisted record.
//
// The key derivation in this file follows the following hierarchy based on
// BIP43:
//
//   - m/1017'/coinType'/keyFamily'/0/index
type KeyFamily uint32

const (
	// KeyFamilyMultiSig are keys to be used within multi-sig scripts.
	KeyFamilyMultiSig KeyFamily = 0

	// KeyFamilyRevocationBase are keys that are used within channels to
	// create revocation basepoints that the remote party will use to
	// create revocation keys for us.
	KeyFamilyRevocationBase KeyFamily = 1

	// KeyFamilyHtlcBase are keys used within channels that will be
	// combined with per-state randomness to produce public keys that
	// will be used in HTLC scripts.
	KeyFamilyHtlcBase KeyFamily = 2

	// KeyFamilyPaymentBase are keys used within channels that will be
	// combined with per-state randomness to produce public keys that
	// will be used in scripts that pay directly to us without any delay.
	KeyFamilyPaymentBase KeyFamily = 3

	// KeyFamilyDelayBase are keys used within channels that will be
	// combined with per-state randomness to produce public keys that
	// will be used in scripts that pay to us, but require a CSV delay
	// before we can sweep the funds.
	KeyFamilyDelayBase KeyFamily = 4

	// KeyFamilyRevocationRoot is a family of keys which will be used to
	// derive the root of a revocation tree for a particular channel.
	KeyFamilyRevocationRoot KeyFamily = 5

	// KeyFamilyNodeKey is a family of keys that will be used to derive
	// the key representing the channel's "identity" towards its peer.
	// The remote peer knows us by the public key derived at the first
	// index of this family.
	KeyFamilyNodeKey KeyFamily = 6

	// KeyFamilyBaseEncryption is the family of keys that will be used to
	// derive keys that we use to encrypt and decrypt any general blob
	// data like encrypted channel records. Often used when encrypting
	// files on disk.
	KeyFamilyBaseEncryption KeyFamily = 7
)

// VersionZero denotes the current version of the key derivation scheme
// described above.
const VersionZero uint32 = 0

// KeyLocator is a two-tuple that can be used to derive *any* key that has
// ever been used under the key derivation scheme described in this file.
// The Family indicates the family of key being identified. The Index denotes
// the precise index of the key being identified.
type KeyLocator struct {
	// Family is the family of key being identified.
	Family KeyFamily

	// Index is the precise index of the key being identified.
	Index uint32
}

// IsEmpty returns true if a KeyLocator is "empty". This may be the case where
// we learn of a key from a remote party for a contract, but don't know the
// precise details of its derivation (as we don't know the private key!).
func (k KeyLocator) IsEmpty() bool {
	return k.Family == 0 && k.Index == 0
}

// KeyDescriptor wraps a KeyLocator and also optionally includes a public key.
// Either the KeyLocator must be non-empty, or the public key pointer
// non-nil. This will be used by the KeyRing interface to lookup arbitrary
// private keys, and also within the SignDescriptor struct to locate precisely
// which keys should be used to sign a target transaction.
type KeyDescriptor struct {
	// KeyLocator is the internal KeyLocator of the descriptor.
	KeyLocator

	// PubKey is an optional public key that fully describes a target key.
	// If this is nil, the KeyLocator MUST NOT be empty.
	PubKey *btcec.PublicKey
}

// String returns a human readable string that describes the target key
// descriptor.
func (k KeyDescriptor) String() string {
	return fmt.Sprintf("family=%v, index=%v", k.Family, k.Index)
}

// KeyRing is the primary interface that will be used to perform public key
// derivation for a channel. Based on the key family and index, the backing
// seed is able to deterministically reproduce any key the channel machinery
// has ever handed out.
type KeyRing interface {
	// DeriveKey attempts to derive an arbitrary key specified by the
	// passed KeyLocator. This may be used in several recovery scenarios,
	// or when manually rotating something like our current default node
	// key.
	DeriveKey(keyLoc KeyLocator) (KeyDescriptor, error)
}

// SecretKeyRing is a ring similar to the regular KeyRing interface, but it's
// also able to derive *private keys*. As this is a super-set of the regular
// KeyRing, we also expect the SecretKeyRing to implement the fully KeyRing
// interface. The methods in this struct may be used to extract the node key
// in order to sign protocol messages, or to derive any of the per-purpose
// channel keys.
type SecretKeyRing interface {
	KeyRing

	// DerivePrivKey attempts to derive the private key that corresponds
	// to the passed key descriptor.
	DerivePrivKey(keyDesc KeyDescriptor) (*btcec.PrivateKey, error)
}

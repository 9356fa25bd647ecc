package keychain

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// SeedSize is the exact size in bytes of a channel seed. Each channel stores
// its own independent seed, so a single seed never produces key material for
// more than one channel.
const SeedSize = 32

// ErrInvalidSeed is returned when attempting to construct a channel seed
// from a byte slice that isn't exactly SeedSize bytes. We fail loudly here
// rather than silently deriving a key hierarchy from malformed input.
var ErrInvalidSeed = errors.New("channel seed must be exactly 32 bytes")

// ChannelSeed is the fixed-size secret value from which the full private key
// hierarchy of a single channel is derived. Loss of the seed is equivalent
// to loss of custody over the channel funds.
type ChannelSeed [SeedSize]byte

// NewChannelSeed constructs a ChannelSeed from the passed byte slice,
// asserting that it has the expected length.
func NewChannelSeed(b []byte) (ChannelSeed, error) {
	var seed ChannelSeed
	if len(b) != SeedSize {
		return seed, fmt.Errorf("%w: got %v bytes", ErrInvalidSeed,
			len(b))
	}

	copy(seed[:], b)

	return seed, nil
}

// String returns a redacted representation of the seed. The raw bytes are
// deliberately unprintable so the seed can never leak through a log line or
// a formatted error.
func (c ChannelSeed) String() string {
	return "<channel-seed>"
}

// ChannelKeyRing is a SecretKeyRing backed by nothing but a channel's seed.
// Every derivation walks the full HD path from the seed again, so the ring
// holds no mutable or cached key state and the same seed always reproduces
// the same hierarchy bit for bit.
type ChannelKeyRing struct {
	seed ChannelSeed

	netParams *chaincfg.Params
}

// A compile time check to ensure that ChannelKeyRing implements the
// SecretKeyRing interface.
var _ SecretKeyRing = (*ChannelKeyRing)(nil)

// NewChannelKeyRing creates a key ring for the channel identified by the
// passed seed, on the given network.
func NewChannelKeyRing(seed ChannelSeed,
	netParams *chaincfg.Params) *ChannelKeyRing {

	return &ChannelKeyRing{
		seed:      seed,
		netParams: netParams,
	}
}

// deriveKeyByLocator derives the extended key at the path
// m/1017'/coinType'/family'/0/index from the seed.
func (c *ChannelKeyRing) deriveKeyByLocator(
	keyLoc KeyLocator) (*hdkeychain.ExtendedKey, error) {

	masterKey, err := hdkeychain.NewMaster(c.seed[:], c.netParams)
	if err != nil {
		return nil, fmt.Errorf("unable to derive master key: %w", err)
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + BIP0043Purpose,
		hdkeychain.HardenedKeyStart + c.netParams.HDCoinType,
		hdkeychain.HardenedKeyStart + uint32(keyLoc.Family),
		0,
		keyLoc.Index,
	}

	key := masterKey
	for _, childIndex := range path {
		key, err = key.Derive(childIndex)
		if err != nil {
			return nil, fmt.Errorf("unable to derive child at "+
				"index %v: %w", childIndex, err)
		}
	}

	return key, nil
}

// DeriveKey attempts to derive an arbitrary key specified by the passed
// KeyLocator.
//
// NOTE: This is part of the keychain.KeyRing interface.
func (c *ChannelKeyRing) DeriveKey(keyLoc KeyLocator) (KeyDescriptor, error) {
	key, err := c.deriveKeyByLocator(keyLoc)
	if err != nil {
		return KeyDescriptor{}, err
	}

	pubKey, err := key.ECPubKey()
	if err != nil {
		return KeyDescriptor{}, err
	}

	return KeyDescriptor{
		KeyLocator: keyLoc,
		PubKey:     pubKey,
	}, nil
}

// DerivePrivKey attempts to derive the private key that corresponds to the
// passed key descriptor.
//
// NOTE: This is part of the keychain.SecretKeyRing interface.
func (c *ChannelKeyRing) DerivePrivKey(
	keyDesc KeyDescriptor) (*btcec.PrivateKey, error) {

	key, err := c.deriveKeyByLocator(keyDesc.KeyLocator)
	if err != nil {
		return nil, err
	}

	return key.ECPrivKey()
}

// NodeKey derives the private key representing the channel's identity
// towards the remote peer. This is the key at the first index of the node
// key family.
func (c *ChannelKeyRing) NodeKey() (*btcec.PrivateKey, error) {
	return c.DerivePrivKey(KeyDescriptor{
		KeyLocator: KeyLocator{
			Family: KeyFamilyNodeKey,
			Index:  0,
		},
	})
}

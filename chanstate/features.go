package chanstate

import "strings"

// FeatureBit represents a feature that can be enabled in either a local or
// global feature vector at a specific bit position. Feature bits follow the
// BOLT-09 convention: even bits are required, odd bits are optional.
type FeatureBit uint16

const (
	// DataLossProtectRequired is a feature bit that indicates that a peer
	// *must* enable the data-loss-protect channel re-establishment
	// extension.
	DataLossProtectRequired FeatureBit = 0

	// DataLossProtectOptional is an optional feature bit signaling the
	// same extension as DataLossProtectRequired.
	DataLossProtectOptional FeatureBit = 1

	// InitialRoutingSync is a local feature bit meaning that the
	// receiving node should send a complete dump of routing information
	// when a new connection is established.
	InitialRoutingSync FeatureBit = 3

	// UpfrontShutdownScriptRequired is a feature bit which indicates
	// that a peer *must* accept an upfront shutdown script to which
	// payout is enforced on cooperative closes.
	UpfrontShutdownScriptRequired FeatureBit = 4

	// UpfrontShutdownScriptOptional is an optional feature bit signaling
	// the same ability as UpfrontShutdownScriptRequired.
	UpfrontShutdownScriptOptional FeatureBit = 5

	// StaticRemoteKeyRequired is a required feature bit that signals
	// that within one's commitment transaction, the key used for the
	// remote party's non-delay output should not be tweaked.
	StaticRemoteKeyRequired FeatureBit = 12

	// StaticRemoteKeyOptional is an optional feature bit signaling the
	// same ability as StaticRemoteKeyRequired.
	StaticRemoteKeyOptional FeatureBit = 13
)

// FeatureVector represents a set of feature bits negotiated for a channel.
// The vector just stores a set of bit flags; meaning is bound to each bit by
// the protocol library. The canonical external representation of a vector is
// its bit-string form, most significant bit first, produced by String.
type FeatureVector struct {
	features map[FeatureBit]bool
}

// NewFeatureVector creates a feature vector with all of the feature bits
// given as arguments enabled.
func NewFeatureVector(bits ...FeatureBit) *FeatureVector {
	fv := &FeatureVector{features: make(map[FeatureBit]bool)}
	for _, bit := range bits {
		fv.Set(bit)
	}

	return fv
}

// IsSet returns whether a particular feature bit is enabled in the vector.
func (fv *FeatureVector) IsSet(feature FeatureBit) bool {
	return fv.features[feature]
}

// Set marks a feature as enabled in the vector.
func (fv *FeatureVector) Set(feature FeatureBit) {
	fv.features[feature] = true
}

// Unset marks a feature as disabled in the vector.
func (fv *FeatureVector) Unset(feature FeatureBit) {
	delete(fv.features, feature)
}

// Bits returns the set of all enabled feature bits, in no particular order.
func (fv *FeatureVector) Bits() []FeatureBit {
	bits := make([]FeatureBit, 0, len(fv.features))
	for bit := range fv.features {
		bits = append(bits, bit)
	}

	return bits
}

// Clone makes a copy of the feature vector.
func (fv *FeatureVector) Clone() *FeatureVector {
	return NewFeatureVector(fv.Bits()...)
}

// Equals returns whether both vectors have exactly the same bits enabled.
func (fv *FeatureVector) Equals(other *FeatureVector) bool {
	if len(fv.features) != len(other.features) {
		return false
	}
	for bit := range fv.features {
		if !other.features[bit] {
			return false
		}
	}

	return true
}

// String encodes the vector in its canonical bit-string form: one character
// per bit position, most significant bit first, using the least number of
// characters. A vector with bits {0, 5} set encodes as "100001"; the empty
// vector encodes as the empty string.
func (fv *FeatureVector) String() string {
	highest := -1
	for feature := range fv.features {
		if int(feature) > highest {
			highest = int(feature)
		}
	}
	if highest == -1 {
		return ""
	}

	var sb strings.Builder
	for i := highest; i >= 0; i-- {
		if fv.features[FeatureBit(i)] {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}

	return sb.String()
}

package chancodec

import (
	"encoding/json"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/knocte/gwallet/chainfee"
	"github.com/knocte/gwallet/chanstate"
)

// TestEndpointEncoding asserts that an endpoint encodes as the two-element
// [address, port] sequence and decodes back to the same address/port pair.
func TestEndpointEncoding(t *testing.T) {
	t.Parallel()

	endpoint := Endpoint{
		Addr: &net.TCPAddr{
			IP:   net.ParseIP("203.0.113.7"),
			Port: 9735,
		},
	}

	encoded, err := json.Marshal(endpoint)
	require.NoError(t, err)
	require.JSONEq(t, `["203.0.113.7", 9735]`, string(encoded))

	var decoded Endpoint
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, "203.0.113.7", decoded.Addr.IP.String())
	require.Equal(t, 9735, decoded.Addr.Port)

	// An endpoint without an address fails to encode rather than panic.
	_, err = json.Marshal(Endpoint{})
	require.Error(t, err)
}

// TestEndpointDecodeShape asserts that any framing other than exactly two
// elements fails with ErrMalformedEndpoint.
func TestEndpointDecodeShape(t *testing.T) {
	t.Parallel()

	malformed := []string{
		`[]`,
		`["203.0.113.7"]`,
		`["203.0.113.7", 9735, "extra"]`,
		`"203.0.113.7:9735"`,
		`[9735, "203.0.113.7"]`,
		`["203.0.113.7", 123456]`,
		`["not-an-address", 9735]`,
	}

	for _, input := range malformed {
		var endpoint Endpoint
		err := json.Unmarshal([]byte(input), &endpoint)
		require.ErrorIs(t, err, ErrMalformedEndpoint, "input: %v",
			input)
	}
}

// TestNodeAddrRoundTrip asserts the single-address converter round-trips
// both IPv4 and IPv6 addresses in their canonical text form.
func TestNodeAddrRoundTrip(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"203.0.113.7", "2001:db8::68"} {
		addr := NodeAddr{IP: net.ParseIP(text)}

		encoded, err := json.Marshal(addr)
		require.NoError(t, err)

		var decoded NodeAddr
		require.NoError(t, json.Unmarshal(encoded, &decoded))
		require.Equal(t, text, decoded.IP.String())
	}

	var decoded NodeAddr
	err := json.Unmarshal([]byte(`"not-an-address"`), &decoded)
	require.Error(t, err)
}

// TestFeatureBitsRoundTrip asserts that a vector with bits {0, 5} set
// encodes to the canonical "100001" form and decodes back to exactly the
// same set.
func TestFeatureBitsRoundTrip(t *testing.T) {
	t.Parallel()

	features := Features{Vec: chanstate.NewFeatureVector(
		chanstate.DataLossProtectRequired,
		chanstate.UpfrontShutdownScriptOptional,
	)}

	encoded, err := json.Marshal(features)
	require.NoError(t, err)
	require.Equal(t, `"100001"`, string(encoded))

	var decoded Features
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	require.True(t, decoded.Vec.IsSet(0))
	require.True(t, decoded.Vec.IsSet(5))
	for bit := chanstate.FeatureBit(1); bit < 5; bit++ {
		require.False(t, decoded.Vec.IsSet(bit))
	}
	require.False(t, decoded.Vec.IsSet(6))
	require.True(t, features.Vec.Equals(decoded.Vec))
}

// TestFeatureBitsCorrupt asserts that an unparsable bit string fails with
// ErrCorruptFeatureBits rather than silently defaulting.
func TestFeatureBitsCorrupt(t *testing.T) {
	t.Parallel()

	for _, input := range []string{`"10x1"`, `"12"`, `42`, `"1 0"`} {
		var decoded Features
		err := json.Unmarshal([]byte(input), &decoded)
		require.ErrorIs(t, err, ErrCorruptFeatureBits, "input: %v",
			input)
	}
}

// TestFeatureBitsRange asserts that a bit string is only accepted while
// every position it addresses fits a 16-bit feature bit: the longest valid
// string decodes faithfully, and one more character fails loudly rather
// than wrapping high positions onto low bits.
func TestFeatureBitsRange(t *testing.T) {
	t.Parallel()

	// 65536 characters address bits 65535..0 and are all representable.
	longest := "1" + strings.Repeat("0", 65535)
	var decoded Features
	err := json.Unmarshal([]byte(`"`+longest+`"`), &decoded)
	require.NoError(t, err)
	require.True(t, decoded.Vec.IsSet(65535))
	require.False(t, decoded.Vec.IsSet(0))
	require.Len(t, decoded.Vec.Bits(), 1)

	// One more character would put the leading bit at position 65536,
	// which must not alias to bit 0.
	tooLong := "1" + strings.Repeat("0", 65536)
	err = json.Unmarshal([]byte(`"`+tooLong+`"`), &decoded)
	require.ErrorIs(t, err, ErrCorruptFeatureBits)
}

// TestCommitSpecRoundTrip asserts that a commitment spec re-expressed as a
// flat record decodes back field for field.
func TestCommitSpecRoundTrip(t *testing.T) {
	t.Parallel()

	var rHash [32]byte
	for i := range rHash {
		rHash[i] = byte(i)
	}

	spec := CommitSpec{Spec: chanstate.CommitmentSpec{
		Htlcs: []chanstate.HTLC{
			{
				Incoming:      true,
				Amount:        1000500,
				RHash:         rHash,
				RefundTimeout: 720000,
				HtlcIndex:     3,
			},
			{
				Amount:        250000,
				RHash:         rHash,
				RefundTimeout: 719000,
				HtlcIndex:     4,
			},
		},
		FeeRatePerKw: 12500,
		ToLocal:      5000000000,
		ToRemote:     4000000000,
	}}

	encoded, err := json.Marshal(spec)
	require.NoError(t, err)

	var decoded CommitSpec
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, spec.Spec, decoded.Spec)
}

// TestCommitSpecDecodeBadHash asserts that payment hashes of the wrong
// length are rejected.
func TestCommitSpecDecodeBadHash(t *testing.T) {
	t.Parallel()

	input := `{"htlcs": [{"incoming": false, "amount_msat": 1,
		"r_hash": "abcd", "refund_timeout": 1, "htlc_index": 0}],
		"fee_rate_per_kw": 1, "to_local_msat": 0, "to_remote_msat": 0}`

	var decoded CommitSpec
	require.Error(t, json.Unmarshal([]byte(input), &decoded))
}

// genCommitSpec draws a random commitment spec.
func genCommitSpec(t *rapid.T, label string) chanstate.CommitmentSpec {
	numHtlcs := rapid.IntRange(0, 4).Draw(t, label+".numHtlcs")

	spec := chanstate.CommitmentSpec{
		FeeRatePerKw: chainfee.SatPerKWeight(
			rapid.Int64Range(253, 1_000_000).Draw(
				t, label+".feeRate",
			),
		),
		ToLocal: chanstate.MilliSatoshi(
			rapid.Uint64().Draw(t, label+".toLocal"),
		),
		ToRemote: chanstate.MilliSatoshi(
			rapid.Uint64().Draw(t, label+".toRemote"),
		),
	}

	for i := 0; i < numHtlcs; i++ {
		htlc := chanstate.HTLC{
			Incoming: rapid.Bool().Draw(t, label+".incoming"),
			Amount: chanstate.MilliSatoshi(
				rapid.Uint64().Draw(t, label+".amount"),
			),
			RefundTimeout: rapid.Uint32().Draw(
				t, label+".timeout",
			),
			HtlcIndex: rapid.Uint64().Draw(t, label+".index"),
		}
		for j := range htlc.RHash {
			htlc.RHash[j] = rapid.Byte().Draw(t, label+".rhash")
		}

		spec.Htlcs = append(spec.Htlcs, htlc)
	}

	return spec
}

// TestCommitSpecRoundTripProperty asserts decode(encode(x)) == x for
// arbitrary commitment specs.
func TestCommitSpecRoundTripProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		spec := CommitSpec{Spec: genCommitSpec(t, "spec")}

		encoded, err := json.Marshal(spec)
		require.NoError(t, err)

		var decoded CommitSpec
		require.NoError(t, json.Unmarshal(encoded, &decoded))
		require.Equal(t, spec.Spec, decoded.Spec)
	})
}

// TestFeaturesRoundTripProperty asserts decode(encode(x)) == x for
// arbitrary feature vectors.
func TestFeaturesRoundTripProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		bits := rapid.SliceOfN(
			rapid.Custom(func(t *rapid.T) chanstate.FeatureBit {
				return chanstate.FeatureBit(
					rapid.IntRange(0, 63).Draw(t, "bit"),
				)
			}), 0, 16,
		).Draw(t, "bits")

		features := Features{Vec: chanstate.NewFeatureVector(bits...)}

		encoded, err := json.Marshal(features)
		require.NoError(t, err)

		var decoded Features
		require.NoError(t, json.Unmarshal(encoded, &decoded))
		require.True(t, features.Vec.Equals(decoded.Vec),
			"%v != %v", features.Vec, decoded.Vec)
	})
}

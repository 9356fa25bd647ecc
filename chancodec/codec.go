// Package chancodec implements the converters that map protocol-internal
// channel values to and from the stable JSON text stored on disk. Each
// converter is a thin wrapper type implementing json.Marshaler and
// json.Unmarshaler, so the surrounding encoding/json machinery picks them up
// as extension points. Every converter is lossless: decode(encode(x)) == x
// for any value the protocol library can produce.
package chancodec

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/knocte/gwallet/chainfee"
	"github.com/knocte/gwallet/chanstate"
)

var (
	// ErrCorruptFeatureBits is returned when the persisted feature
	// bit-string cannot be parsed back into a feature vector. There is no
	// silent fallback: an incorrectly decoded feature set could
	// misrepresent the channel's protocol capabilities.
	ErrCorruptFeatureBits = errors.New("corrupt feature bit string")

	// ErrMalformedEndpoint is returned when a persisted endpoint does not
	// have the expected [address, port] two-element framing.
	ErrMalformedEndpoint = errors.New("malformed endpoint")
)

// NodeAddr encodes a single network address as its canonical text form.
type NodeAddr struct {
	IP net.IP
}

// MarshalJSON encodes the address as its dotted/hex notation.
func (a NodeAddr) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.IP.String())
}

// UnmarshalJSON decodes an address from its canonical text form.
func (a *NodeAddr) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}

	ip := net.ParseIP(text)
	if ip == nil {
		return fmt.Errorf("unable to parse network address %q", text)
	}

	a.IP = ip

	return nil
}

// Endpoint encodes an address-plus-port endpoint as a two-element ordered
// sequence [address, port].
type Endpoint struct {
	Addr *net.TCPAddr
}

// MarshalJSON encodes the endpoint as [address, port]. An endpoint with no
// address set cannot be encoded.
func (e Endpoint) MarshalJSON() ([]byte, error) {
	if e.Addr == nil {
		return nil, fmt.Errorf("unable to encode endpoint: no " +
			"address set")
	}

	return json.Marshal([2]interface{}{
		e.Addr.IP.String(), e.Addr.Port,
	})
}

// UnmarshalJSON decodes an endpoint, asserting the two-element array
// framing. Any shape mismatch fails with ErrMalformedEndpoint.
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEndpoint, err)
	}
	if len(elems) != 2 {
		return fmt.Errorf("%w: expected 2 elements, got %v",
			ErrMalformedEndpoint, len(elems))
	}

	var addr NodeAddr
	if err := json.Unmarshal(elems[0], &addr); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEndpoint, err)
	}

	var port uint16
	if err := json.Unmarshal(elems[1], &port); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEndpoint, err)
	}

	e.Addr = &net.TCPAddr{IP: addr.IP, Port: int(port)}

	return nil
}

// Features encodes a feature vector as its canonical bit-string form rather
// than raw integers, e.g. bits {0, 5} encode as "100001".
type Features struct {
	Vec *chanstate.FeatureVector
}

// MarshalJSON encodes the vector's canonical bit-string.
func (f Features) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Vec.String())
}

// maxFeatureBits is the number of bit positions a feature vector can
// address. Bit positions are 16-bit values, so a bit-string longer than this
// would wrap around rather than decode faithfully.
const maxFeatureBits = 1 << 16

// UnmarshalJSON parses a bit-string back into a feature vector. A parse
// failure is fatal to the decode.
func (f *Features) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptFeatureBits, err)
	}

	// Reject strings addressing bits beyond the representable range
	// outright, as converting their positions below would truncate.
	if len(text) > maxFeatureBits {
		return fmt.Errorf("%w: bit string of %v bits exceeds %v "+
			"addressable bits", ErrCorruptFeatureBits, len(text),
			maxFeatureBits)
	}

	vec := chanstate.NewFeatureVector()
	for i := 0; i < len(text); i++ {
		// The string is most significant bit first, so the character
		// at position i addresses bit len-1-i.
		bit := chanstate.FeatureBit(len(text) - 1 - i)

		switch text[i] {
		case '1':
			vec.Set(bit)
		case '0':
		default:
			return fmt.Errorf("%w: unexpected character %q",
				ErrCorruptFeatureBits, text[i])
		}
	}

	f.Vec = vec

	return nil
}

// htlcJSON is the flat representation of a single HTLC.
type htlcJSON struct {
	Incoming      bool   `json:"incoming"`
	AmountMsat    uint64 `json:"amount_msat"`
	RHash         string `json:"r_hash"`
	RefundTimeout uint32 `json:"refund_timeout"`
	HtlcIndex     uint64 `json:"htlc_index"`
}

// commitSpecJSON re-expresses a commitment spec as an explicit flat record
// with the same four logical fields. Pinning down the authoritative fields
// here keeps derived or computed state out of the persisted form.
type commitSpecJSON struct {
	Htlcs        []htlcJSON `json:"htlcs"`
	FeeRatePerKw int64      `json:"fee_rate_per_kw"`
	ToLocalMsat  uint64     `json:"to_local_msat"`
	ToRemoteMsat uint64     `json:"to_remote_msat"`
}

// CommitSpec encodes a commitment specification as a flat record.
type CommitSpec struct {
	Spec chanstate.CommitmentSpec
}

// MarshalJSON encodes the commitment spec's four authoritative fields.
func (c CommitSpec) MarshalJSON() ([]byte, error) {
	shadow := commitSpecJSON{
		Htlcs:        make([]htlcJSON, 0, len(c.Spec.Htlcs)),
		FeeRatePerKw: int64(c.Spec.FeeRatePerKw),
		ToLocalMsat:  uint64(c.Spec.ToLocal),
		ToRemoteMsat: uint64(c.Spec.ToRemote),
	}

	for _, htlc := range c.Spec.Htlcs {
		shadow.Htlcs = append(shadow.Htlcs, htlcJSON{
			Incoming:      htlc.Incoming,
			AmountMsat:    uint64(htlc.Amount),
			RHash:         hex.EncodeToString(htlc.RHash[:]),
			RefundTimeout: htlc.RefundTimeout,
			HtlcIndex:     htlc.HtlcIndex,
		})
	}

	return json.Marshal(shadow)
}

// UnmarshalJSON reconstructs the commitment spec by direct field copy.
func (c *CommitSpec) UnmarshalJSON(data []byte) error {
	var shadow commitSpecJSON
	if err := json.Unmarshal(data, &shadow); err != nil {
		return err
	}

	spec := chanstate.CommitmentSpec{
		FeeRatePerKw: chainfee.SatPerKWeight(shadow.FeeRatePerKw),
		ToLocal:      chanstate.MilliSatoshi(shadow.ToLocalMsat),
		ToRemote:     chanstate.MilliSatoshi(shadow.ToRemoteMsat),
	}

	if len(shadow.Htlcs) > 0 {
		spec.Htlcs = make([]chanstate.HTLC, 0, len(shadow.Htlcs))
	}
	for _, htlc := range shadow.Htlcs {
		rHash, err := hex.DecodeString(htlc.RHash)
		if err != nil {
			return fmt.Errorf("unable to decode payment hash: %w",
				err)
		}
		if len(rHash) != 32 {
			return fmt.Errorf("payment hash must be 32 bytes, "+
				"got %v", len(rHash))
		}

		decoded := chanstate.HTLC{
			Incoming:      htlc.Incoming,
			Amount:        chanstate.MilliSatoshi(htlc.AmountMsat),
			RefundTimeout: htlc.RefundTimeout,
			HtlcIndex:     htlc.HtlcIndex,
		}
		copy(decoded.RHash[:], rHash)

		spec.Htlcs = append(spec.Htlcs, decoded)
	}

	c.Spec = spec

	return nil
}

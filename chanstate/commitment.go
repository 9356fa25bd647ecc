package chanstate

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/knocte/gwallet/chainfee"
)

// MilliSatoshi are the native unit of the Lightning Network. A milli-satoshi
// is simply 1/1000th of a satoshi. There are 1000 milli-satoshis in a single
// satoshi.
type MilliSatoshi uint64

// ToSatoshis converts a target MilliSatoshi amount to satoshis. Simply, this
// sheds a factor of 1000 from the mSAT amount in order to convert it to SAT.
func (m MilliSatoshi) ToSatoshis() btcutil.Amount {
	return btcutil.Amount(uint64(m) / 1000)
}

// String returns the string representation of the mSAT amount.
func (m MilliSatoshi) String() string {
	return fmt.Sprintf("%v mSAT", uint64(m))
}

// HTLC is the on-disk representation of a hash time-locked contract. HTLCs
// are contained within CommitmentSpecs which encode the current state in
// force for both commitment transactions.
type HTLC struct {
	// Incoming denotes whether we're the receiver or the sender of this
	// HTLC.
	Incoming bool

	// Amount is the amount of milli-satoshis this HTLC escrows.
	Amount MilliSatoshi

	// RHash is the payment hash of the HTLC.
	RHash [32]byte

	// RefundTimeout is the absolute timeout on the HTLC that the sender
	// must wait before reclaiming the funds in limbo.
	RefundTimeout uint32

	// HtlcIndex is the index within the commitment that this HTLC was
	// added at.
	HtlcIndex uint64
}

// CommitmentSpec is the authoritative description of a commitment state: the
// set of outstanding HTLCs, the fee rate in force, and the settled balance
// on either side. This is exactly the set of fields that crosses the
// serialization boundary; anything derived from them (weights, obscured
// state hints, signatures) is recomputed by the protocol library after
// decode.
type CommitmentSpec struct {
	// Htlcs is the set of HTLCs pending in this commitment.
	Htlcs []HTLC

	// FeeRatePerKw is the fee rate, expressed in sat/kw, that the
	// commitment transaction pays.
	FeeRatePerKw chainfee.SatPerKWeight

	// ToLocal is the amount of funds, in milli-satoshis, settled to the
	// local node.
	ToLocal MilliSatoshi

	// ToRemote is the amount of funds, in milli-satoshis, settled to the
	// remote node.
	ToRemote MilliSatoshi
}

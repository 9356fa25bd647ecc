package chanstate

import (
	"encoding/json"

	"github.com/btcsuite/btcd/wire"
)

// ChannelType encodes the commitment flavor negotiated for the channel.
type ChannelType uint8

const (
	// SingleFunder represents a channel wherein one party solely funds
	// the entire capacity of the channel.
	SingleFunder ChannelType = 0

	// SingleFunderTweakless is similar to SingleFunder, but the remote
	// party's key in our commitment output is static rather than tweaked
	// per state.
	SingleFunderTweakless ChannelType = 1
)

// SnapshotVersion is the current schema version of the Snapshot document.
// Decoders use the version stored in each snapshot to know how to interpret
// the remaining fields.
const SnapshotVersion uint16 = 0

// Snapshot captures the full negotiated state of a channel at a point in
// time: commitment specs for both sides, per-commitment indices, negotiated
// features, and revocation material. The persistence layer treats the
// revocation material and the Extensions document as opaque; they belong to
// the protocol library and are carried across the serialization boundary
// untouched.
type Snapshot struct {
	// Version is the schema version of this snapshot.
	Version uint16

	// ChanType is the commitment flavor in force for the channel.
	ChanType ChannelType

	// IsInitiator is true if the local node funded the channel.
	IsInitiator bool

	// FundingOutpoint is the outpoint of the confirmed funding
	// transaction. This uniquely identifies the channel on-chain.
	FundingOutpoint wire.OutPoint

	// LocalCommitIndex is the state number of the local commitment.
	LocalCommitIndex uint64

	// RemoteCommitIndex is the state number of the remote commitment.
	RemoteCommitIndex uint64

	// LocalCommitment describes the commitment state held by the local
	// node.
	LocalCommitment CommitmentSpec

	// RemoteCommitment describes the commitment state held by the remote
	// node.
	RemoteCommitment CommitmentSpec

	// Features is the set of feature bits negotiated for the channel.
	Features *FeatureVector

	// RevocationState is the protocol library's serialized revocation
	// material. Opaque to the persistence layer.
	RevocationState []byte

	// Extensions carries any additional protocol-library-owned state.
	// It is round-tripped verbatim through the codec.
	Extensions json.RawMessage
}

// Copy returns a deep copy of the snapshot so that a caller holding the
// original cannot mutate persisted or restored state out from under another
// owner.
func (s *Snapshot) Copy() *Snapshot {
	cp := *s

	cp.LocalCommitment.Htlcs = append(
		[]HTLC(nil), s.LocalCommitment.Htlcs...,
	)
	cp.RemoteCommitment.Htlcs = append(
		[]HTLC(nil), s.RemoteCommitment.Htlcs...,
	)

	if s.Features != nil {
		cp.Features = s.Features.Clone()
	}

	cp.RevocationState = append([]byte(nil), s.RevocationState...)
	cp.Extensions = append(json.RawMessage(nil), s.Extensions...)

	return &cp
}

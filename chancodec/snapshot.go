package chancodec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/knocte/gwallet/chanstate"
)

// snapshotJSON is the stable wire form of a protocol state snapshot. The
// funding outpoint uses the usual "txid:index" notation, commitment specs
// and features use their dedicated converters, and the revocation material
// plus extension document pass through opaquely.
type snapshotJSON struct {
	Version           uint16          `json:"version"`
	ChanType          uint8           `json:"chan_type"`
	IsInitiator       bool            `json:"is_initiator"`
	FundingOutpoint   string          `json:"funding_outpoint"`
	LocalCommitIndex  uint64          `json:"local_commit_index"`
	RemoteCommitIndex uint64          `json:"remote_commit_index"`
	LocalCommitment   CommitSpec      `json:"local_commitment"`
	RemoteCommitment  CommitSpec      `json:"remote_commitment"`
	Features          *Features       `json:"features"`
	RevocationState   string          `json:"revocation_state"`
	Extensions        json.RawMessage `json:"extensions,omitempty"`
}

// Snapshot encodes a full protocol state snapshot.
type Snapshot struct {
	Snap *chanstate.Snapshot
}

// MarshalJSON encodes the snapshot document. A nil feature vector is
// normalized to the empty vector, so every encoded snapshot carries a
// features field and decodes to a usable, non-nil vector.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.Snap == nil {
		return []byte("null"), nil
	}

	features := s.Snap.Features
	if features == nil {
		features = chanstate.NewFeatureVector()
	}

	shadow := snapshotJSON{
		Version:           s.Snap.Version,
		ChanType:          uint8(s.Snap.ChanType),
		IsInitiator:       s.Snap.IsInitiator,
		FundingOutpoint:   s.Snap.FundingOutpoint.String(),
		LocalCommitIndex:  s.Snap.LocalCommitIndex,
		RemoteCommitIndex: s.Snap.RemoteCommitIndex,
		LocalCommitment:   CommitSpec{Spec: s.Snap.LocalCommitment},
		RemoteCommitment:  CommitSpec{Spec: s.Snap.RemoteCommitment},
		Features:          &Features{Vec: features},
		RevocationState: hex.EncodeToString(
			s.Snap.RevocationState,
		),
		Extensions: s.Snap.Extensions,
	}

	return json.Marshal(shadow)
}

// UnmarshalJSON decodes the snapshot document.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		s.Snap = nil
		return nil
	}

	var shadow snapshotJSON
	if err := json.Unmarshal(data, &shadow); err != nil {
		return err
	}

	// Every encoded snapshot carries a features field; a document
	// without one was not produced by this codec.
	if shadow.Features == nil {
		return fmt.Errorf("snapshot missing feature vector")
	}

	fundingOutpoint, err := wire.NewOutPointFromString(
		shadow.FundingOutpoint,
	)
	if err != nil {
		return fmt.Errorf("unable to decode funding outpoint: %w",
			err)
	}

	revocationState, err := hex.DecodeString(shadow.RevocationState)
	if err != nil {
		return fmt.Errorf("unable to decode revocation state: %w",
			err)
	}
	if len(revocationState) == 0 {
		revocationState = nil
	}

	s.Snap = &chanstate.Snapshot{
		Version:           shadow.Version,
		ChanType:          chanstate.ChannelType(shadow.ChanType),
		IsInitiator:       shadow.IsInitiator,
		FundingOutpoint:   *fundingOutpoint,
		LocalCommitIndex:  shadow.LocalCommitIndex,
		RemoteCommitIndex: shadow.RemoteCommitIndex,
		LocalCommitment:   shadow.LocalCommitment.Spec,
		RemoteCommitment:  shadow.RemoteCommitment.Spec,
		Features:          shadow.Features.Vec,
		RevocationState:   revocationState,
		Extensions:        shadow.Extensions,
	}

	return nil
}

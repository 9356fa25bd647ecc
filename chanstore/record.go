package chanstore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	fn "github.com/lightningnetwork/lnd/fn/v2"

	"github.com/knocte/gwallet/chancodec"
	"github.com/knocte/gwallet/chanstate"
	"github.com/knocte/gwallet/keychain"
)

// RecordVersion is the current schema version of the persisted channel
// record.
const RecordVersion uint16 = 0

// ChannelStatus describes where a channel is in its close lifecycle. The
// status is part of the persisted record so that a restarted wallet can
// resume a pending close.
type ChannelStatus uint8

const (
	// StatusOpen is the status of a channel under normal operation.
	StatusOpen ChannelStatus = iota

	// StatusClosing is the status of a channel whose closing transaction
	// has been requested but not yet confirmed to a safe depth.
	StatusClosing

	// StatusConfirmedClosed is the status of a channel whose closing
	// transaction has reached the minimum safe confirmation depth.
	StatusConfirmedClosed

	// StatusCloseFailed is the status of a channel whose close
	// confirmation polling exhausted its attempt budget. The close may
	// still confirm later; polling can be retried from this status.
	StatusCloseFailed
)

// String returns a human readable name of the status.
func (c ChannelStatus) String() string {
	switch c {
	case StatusOpen:
		return "open"
	case StatusClosing:
		return "closing"
	case StatusConfirmedClosed:
		return "confirmed-closed"
	case StatusCloseFailed:
		return "close-failed"
	default:
		return fmt.Sprintf("unknown<%d>", uint8(c))
	}
}

// parseChannelStatus maps the persisted status name back to its value.
func parseChannelStatus(text string) (ChannelStatus, error) {
	switch text {
	case "open":
		return StatusOpen, nil
	case "closing":
		return StatusClosing, nil
	case "confirmed-closed":
		return StatusConfirmedClosed, nil
	case "close-failed":
		return StatusCloseFailed, nil
	default:
		return 0, fmt.Errorf("unknown channel status %q", text)
	}
}

// networkParams maps the persisted network name to its chain parameters.
var networkParams = map[string]*chaincfg.Params{
	chaincfg.MainNetParams.Name:       &chaincfg.MainNetParams,
	chaincfg.TestNet3Params.Name:      &chaincfg.TestNet3Params,
	chaincfg.SimNetParams.Name:        &chaincfg.SimNetParams,
	chaincfg.RegressionNetParams.Name: &chaincfg.RegressionNetParams,
	chaincfg.SigNetParams.Name:        &chaincfg.SigNetParams,
}

// ChannelRecord is the durable unit of a single channel: everything needed
// to reconstruct a live channel object after a restart. The record is always
// rewritten wholesale; there is no field-level patching.
type ChannelRecord struct {
	// Seed is the fixed-size secret from which all of the channel's
	// private keys are re-derived on load. It is never logged and never
	// leaves this record.
	Seed keychain.ChannelSeed

	// Network identifies the blockchain the channel operates on. It must
	// match the network of the wallet account that opened the channel.
	Network *chaincfg.Params

	// RemoteNodeID is the counterparty's public identity key. Immutable
	// for the lifetime of the channel.
	RemoteNodeID *btcec.PublicKey

	// Snapshot is the protocol library's full negotiated channel state.
	Snapshot *chanstate.Snapshot

	// OwnerAccount links this record to the wallet account that funded
	// the channel.
	OwnerAccount string

	// RemoteEndpoint is the last known reachable endpoint of the remote
	// peer.
	RemoteEndpoint *net.TCPAddr

	// MinSafeDepth is the number of confirmations required before a
	// channel-related transaction is considered final.
	MinSafeDepth uint32

	// Status is the channel's position in the close lifecycle.
	Status ChannelStatus

	// ClosingTxID is the id of the closing transaction, once a close has
	// been requested.
	ClosingTxID fn.Option[chainhash.Hash]
}

// recordJSON is the stable on-disk form of a ChannelRecord. The endpoint,
// feature-bit, and commitment-spec fields are delegated to the chancodec
// converters.
type recordJSON struct {
	Version        uint16             `json:"version"`
	Seed           string             `json:"key_derivation_seed"`
	Network        string             `json:"network"`
	RemoteNodeID   string             `json:"remote_node_id"`
	OwnerAccount   string             `json:"owner_account"`
	RemoteEndpoint chancodec.Endpoint `json:"remote_endpoint"`
	MinSafeDepth   uint32             `json:"min_safe_depth"`
	Status         string             `json:"status"`
	ClosingTxID    *string            `json:"closing_txid,omitempty"`
	Snapshot       chancodec.Snapshot `json:"state_snapshot"`
}

// MarshalJSON encodes the full record. An incompletely populated record is
// rejected with an error rather than written out, so a half-constructed
// channel can never reach disk.
func (r *ChannelRecord) MarshalJSON() ([]byte, error) {
	switch {
	case r.Network == nil:
		return nil, fmt.Errorf("unable to encode record: no network " +
			"set")
	case r.RemoteNodeID == nil:
		return nil, fmt.Errorf("unable to encode record: no remote " +
			"node id set")
	case r.RemoteEndpoint == nil:
		return nil, fmt.Errorf("unable to encode record: no remote " +
			"endpoint set")
	}

	var closingTxID *string
	r.ClosingTxID.WhenSome(func(txid chainhash.Hash) {
		text := txid.String()
		closingTxID = &text
	})

	shadow := recordJSON{
		Version:      RecordVersion,
		Seed:         hex.EncodeToString(r.Seed[:]),
		Network:      r.Network.Name,
		RemoteNodeID: hex.EncodeToString(
			r.RemoteNodeID.SerializeCompressed(),
		),
		OwnerAccount:   r.OwnerAccount,
		RemoteEndpoint: chancodec.Endpoint{Addr: r.RemoteEndpoint},
		MinSafeDepth:   r.MinSafeDepth,
		Status:         r.Status.String(),
		ClosingTxID:    closingTxID,
		Snapshot:       chancodec.Snapshot{Snap: r.Snapshot},
	}

	return json.Marshal(shadow)
}

// UnmarshalJSON decodes the full record, validating every field. A failure
// of any field blocks the decode entirely: a partially decoded record is
// never returned.
func (r *ChannelRecord) UnmarshalJSON(data []byte) error {
	var shadow recordJSON
	if err := json.Unmarshal(data, &shadow); err != nil {
		return err
	}

	if shadow.Version > RecordVersion {
		return fmt.Errorf("unknown record version %v", shadow.Version)
	}

	seedBytes, err := hex.DecodeString(shadow.Seed)
	if err != nil {
		return fmt.Errorf("unable to decode seed: %w", err)
	}
	seed, err := keychain.NewChannelSeed(seedBytes)
	if err != nil {
		return err
	}

	netParams, ok := networkParams[shadow.Network]
	if !ok {
		return fmt.Errorf("unknown network %q", shadow.Network)
	}

	nodeIDBytes, err := hex.DecodeString(shadow.RemoteNodeID)
	if err != nil {
		return fmt.Errorf("unable to decode remote node id: %w", err)
	}
	remoteNodeID, err := btcec.ParsePubKey(nodeIDBytes)
	if err != nil {
		return fmt.Errorf("unable to parse remote node id: %w", err)
	}

	status, err := parseChannelStatus(shadow.Status)
	if err != nil {
		return err
	}

	closingTxID := fn.None[chainhash.Hash]()
	if shadow.ClosingTxID != nil {
		txid, err := chainhash.NewHashFromStr(*shadow.ClosingTxID)
		if err != nil {
			return fmt.Errorf("unable to decode closing txid: "+
				"%w", err)
		}
		closingTxID = fn.Some(*txid)
	}

	r.Seed = seed
	r.Network = netParams
	r.RemoteNodeID = remoteNodeID
	r.Snapshot = shadow.Snapshot.Snap
	r.OwnerAccount = shadow.OwnerAccount
	r.RemoteEndpoint = shadow.RemoteEndpoint.Addr
	r.MinSafeDepth = shadow.MinSafeDepth
	r.Status = status
	r.ClosingTxID = closingTxID

	return nil
}

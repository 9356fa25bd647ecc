// Package chanrestore turns persisted channel records back into live channel
// objects. Rehydration re-derives the channel's key hierarchy from the stored
// seed, asks a factory to assemble a channel skeleton, and then overlays the
// persisted protocol snapshot verbatim. No channel state is ever
// re-negotiated with the remote peer.
package chanrestore

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"github.com/knocte/gwallet/chainfee"
	"github.com/knocte/gwallet/chanstate"
	"github.com/knocte/gwallet/chanstore"
	"github.com/knocte/gwallet/keychain"
)

// ErrFundingAlreadyEstablished is returned when a component asks for the
// funding transaction of a channel that was restored from a record. The
// funding flow completed in a prior wallet session, so the transaction is
// gone for good and must never be fabricated.
var ErrFundingAlreadyEstablished = errors.New(
	"funding already established: funding transaction not retained",
)

// FundingSource supplies the funding transaction of a channel under
// construction. Channels being opened hand the factory a live source;
// restored channels hand it AlreadyEstablished.
type FundingSource interface {
	// FundingTransaction returns the transaction that funds the channel.
	FundingTransaction() (*wire.MsgTx, error)
}

// AlreadyEstablished is the FundingSource of every restored channel. Its
// funding transaction was broadcast and confirmed in an earlier session, so
// any attempt to fetch it fails.
type AlreadyEstablished struct{}

// FundingTransaction always fails with ErrFundingAlreadyEstablished.
//
// NOTE: This is part of the FundingSource interface.
func (AlreadyEstablished) FundingTransaction() (*wire.MsgTx, error) {
	return nil, ErrFundingAlreadyEstablished
}

// A compile time check to ensure that AlreadyEstablished implements the
// FundingSource interface.
var _ FundingSource = (*AlreadyEstablished)(nil)

// ChannelFactory assembles channel objects for the protocol library in use.
// The factory only builds the skeleton: static keys, network, and
// counterparty identity. The negotiated state is overlaid afterwards via
// RestoreSnapshot.
type ChannelFactory interface {
	// NewChannel creates a channel skeleton from the passed static
	// parameters.
	NewChannel(keyRing keychain.SecretKeyRing,
		feeEstimator chainfee.Estimator, nodeKey *btcec.PrivateKey,
		funding FundingSource, netParams *chaincfg.Params,
		remoteNodeID *btcec.PublicKey) (chanstate.Channel, error)
}

// Rehydrate reconstructs a live channel from its persisted record. The
// resulting channel's queryable state is exactly the state captured by the
// last successful save of the record.
func Rehydrate(record *chanstore.ChannelRecord, factory ChannelFactory,
	feeEstimator chainfee.Estimator) (chanstate.Channel, error) {

	keyRing := keychain.NewChannelKeyRing(record.Seed, record.Network)

	nodeKey, err := keyRing.NodeKey()
	if err != nil {
		return nil, fmt.Errorf("unable to derive node key: %w", err)
	}

	log.Debugf("Rehydrating channel with peer %x on network %v",
		record.RemoteNodeID.SerializeCompressed(), record.Network.Name)

	channel, err := factory.NewChannel(
		keyRing, feeEstimator, nodeKey, AlreadyEstablished{},
		record.Network, record.RemoteNodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create channel skeleton: %w",
			err)
	}

	if err := channel.RestoreSnapshot(record.Snapshot); err != nil {
		return nil, fmt.Errorf("unable to restore channel snapshot: "+
			"%w", err)
	}

	return channel, nil
}

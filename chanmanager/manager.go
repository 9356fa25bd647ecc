// Package chanmanager is the wallet-session facade over the channel
// persistence layer. It ties the snapshot store, the rehydrator and the
// closing confirmation monitor together behind a handful of operations a
// wallet session actually performs: save a channel, load it back after a
// restart, request a cooperative close, and wait for the close to confirm.
package chanmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	fn "github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"golang.org/x/sync/errgroup"

	"github.com/knocte/gwallet/chainfee"
	"github.com/knocte/gwallet/chancloser"
	"github.com/knocte/gwallet/chanrestore"
	"github.com/knocte/gwallet/chanstate"
	"github.com/knocte/gwallet/chanstore"
)

// Config bundles the collaborators a manager needs. Store, Factory,
// FeeEstimator and Observer must be set; the remaining fields tune the
// closing monitor and default like chancloser's config.
type Config struct {
	// Store persists channel records.
	Store *chanstore.Store

	// Factory assembles channel skeletons during rehydration.
	Factory chanrestore.ChannelFactory

	// FeeEstimator is handed to every rehydrated channel.
	FeeEstimator chainfee.Estimator

	// Observer is the chain view used to confirm closing transactions.
	Observer chancloser.ChainObserver

	// MaxPollAttempts bounds confirmation checks per close poll.
	MaxPollAttempts uint32

	// PollInterval is the wait between confirmation checks.
	PollInterval time.Duration

	// NewTicker constructs the ticker pacing close polls.
	NewTicker func(interval time.Duration) ticker.Ticker

	// Clock is the monitor's time source.
	Clock clock.Clock
}

// ChannelHandle pairs a persisted record with the live channel rehydrated
// from it. The handle is the unit the manager operates on.
type ChannelHandle struct {
	// FileName is the record's file name inside the channel directory.
	FileName string

	// Record is the channel's durable state.
	Record *chanstore.ChannelRecord

	// Channel is the live channel object, nil if the handle was built
	// from a record only.
	Channel chanstate.Channel
}

// Manager coordinates channel persistence over a single wallet account.
type Manager struct {
	cfg Config

	monitor *chancloser.Monitor
}

// NewManager creates a manager from the passed config.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg: cfg,
		monitor: chancloser.NewMonitor(chancloser.Config{
			Observer:        cfg.Observer,
			MaxPollAttempts: cfg.MaxPollAttempts,
			PollInterval:    cfg.PollInterval,
			NewTicker:       cfg.NewTicker,
			Clock:           cfg.Clock,
		}),
	}
}

// ChannelFileName returns the canonical record file name of the channel
// anchored at the passed funding outpoint.
func ChannelFileName(fundingOutpoint wire.OutPoint) string {
	return fmt.Sprintf("channel-%v-%d.json", fundingOutpoint.Hash,
		fundingOutpoint.Index)
}

// Save persists the handle's record, refreshing the record's snapshot from
// the live channel first so the file always reflects the channel's current
// negotiated state.
func (m *Manager) Save(handle *ChannelHandle) error {
	if handle.Channel != nil {
		handle.Record.Snapshot = handle.Channel.Snapshot()
	}

	return m.cfg.Store.Save(handle.Record, handle.FileName)
}

// Load reads the named record from the store and rehydrates the live channel
// from it.
func (m *Manager) Load(fileName string) (*ChannelHandle, error) {
	record, err := m.cfg.Store.Load(m.cfg.Store.FilePath(fileName))
	if err != nil {
		return nil, err
	}

	channel, err := chanrestore.Rehydrate(
		record, m.cfg.Factory, m.cfg.FeeEstimator,
	)
	if err != nil {
		return nil, err
	}

	return &ChannelHandle{
		FileName: fileName,
		Record:   record,
		Channel:  channel,
	}, nil
}

// RequestClose marks the channel as closing, stamps the closing transaction
// id onto the record, and persists the transition so a restarted wallet can
// resume waiting for the confirmation.
func (m *Manager) RequestClose(handle *ChannelHandle,
	closingTxID fn.Option[chainhash.Hash]) error {

	if handle.Record.Status == chanstore.StatusConfirmedClosed {
		return fmt.Errorf("channel in %v already closed",
			handle.FileName)
	}

	handle.Record.Status = chanstore.StatusClosing
	handle.Record.ClosingTxID = closingTxID

	log.Infof("Close requested for channel in %v", handle.FileName)

	return m.Save(handle)
}

// PollUntilClosed waits for the handle's closing transaction to reach its
// safe depth and persists the resulting status, whether the close confirmed
// or the attempt budget ran out. ErrClosingNotConfirmed still surfaces to
// the caller after the failed status has been written, so the outcome is
// never swallowed. Cancellation persists nothing.
func (m *Manager) PollUntilClosed(ctx context.Context,
	handle *ChannelHandle) error {

	pollErr := m.monitor.WaitForClose(ctx, handle.Record)
	if pollErr != nil &&
		!errors.Is(pollErr, chancloser.ErrClosingNotConfirmed) {

		return pollErr
	}

	if err := m.Save(handle); err != nil {
		return err
	}

	return pollErr
}

// PollAllUntilClosed polls every passed handle concurrently and returns the
// first error observed, after all polls have finished. A channel that fails
// to confirm doesn't cut the polling of its siblings short.
func (m *Manager) PollAllUntilClosed(ctx context.Context,
	handles ...*ChannelHandle) error {

	var group errgroup.Group
	for _, handle := range handles {
		handle := handle
		group.Go(func() error {
			return m.PollUntilClosed(ctx, handle)
		})
	}

	return group.Wait()
}

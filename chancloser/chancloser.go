// Package chancloser tracks the confirmation of channel closing
// transactions. Once a cooperative close has been requested and its closing
// transaction broadcast, the monitor polls a chain observer until the
// transaction reaches the channel's minimum safe depth, or until a bounded
// number of attempts is exhausted.
package chancloser

import (
	"context"
	"errors"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/knocte/gwallet/chanstore"
)

const (
	// DefaultMaxPollAttempts is the number of confirmation checks a
	// monitor performs before giving up on a closing transaction.
	DefaultMaxPollAttempts uint32 = 10

	// DefaultPollInterval is the wait between two consecutive
	// confirmation checks.
	DefaultPollInterval = 10 * time.Second
)

// ErrClosingNotConfirmed is returned when the closing transaction hasn't
// reached the minimum safe depth within the monitor's attempt budget. The
// transaction may well confirm later; the caller decides whether to retry.
var ErrClosingNotConfirmed = errors.New(
	"closing tx not confirmed within attempt budget",
)

// ChainObserver reports whether a channel's closing transaction has reached
// the channel's minimum safe confirmation depth.
type ChainObserver interface {
	// IsClosingTxConfirmed checks the chain for the record's closing
	// transaction. It returns true only once the transaction is confirmed
	// at the record's MinSafeDepth.
	IsClosingTxConfirmed(ctx context.Context,
		record *chanstore.ChannelRecord) (bool, error)
}

// Config bundles the collaborators and tunables of a Monitor. Zero values
// are replaced by defaults.
type Config struct {
	// Observer is the chain view the monitor polls. It must be set.
	Observer ChainObserver

	// MaxPollAttempts bounds the number of confirmation checks per
	// WaitForClose call.
	MaxPollAttempts uint32

	// PollInterval is the wait between two confirmation checks.
	PollInterval time.Duration

	// NewTicker constructs the ticker that paces the poll loop. Tests
	// inject a force ticker here to drive the loop deterministically.
	NewTicker func(interval time.Duration) ticker.Ticker

	// Clock is the time source used for attempt timestamps.
	Clock clock.Clock
}

// Monitor polls a chain observer until a channel's closing transaction
// confirms. A single monitor can watch any number of channels; each
// WaitForClose call runs in its caller's goroutine with its own ticker, so
// one stalled channel never delays another.
type Monitor struct {
	cfg Config
}

// NewMonitor creates a monitor from the passed config, filling in defaults
// for any unset tunables.
func NewMonitor(cfg Config) *Monitor {
	if cfg.MaxPollAttempts == 0 {
		cfg.MaxPollAttempts = DefaultMaxPollAttempts
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = func(interval time.Duration) ticker.Ticker {
			return ticker.New(interval)
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Monitor{cfg: cfg}
}

// WaitForClose blocks until the record's closing transaction is confirmed at
// the record's minimum safe depth, mutating the record's in-memory status as
// the close progresses. If the attempt budget runs out first, the status
// moves to StatusCloseFailed and ErrClosingNotConfirmed is returned rather
// than swallowed; a later call can pick the poll back up from that status.
//
// Cancelling the context stops the poll between attempts. Cancellation only
// affects the in-memory status bookkeeping; the protocol snapshot is never
// touched.
func (m *Monitor) WaitForClose(ctx context.Context,
	record *chanstore.ChannelRecord) error {

	// A channel that already reached its safe depth needs no further
	// chain queries.
	if record.Status == chanstore.StatusConfirmedClosed {
		return nil
	}

	record.Status = chanstore.StatusClosing

	pollTicker := m.cfg.NewTicker(m.cfg.PollInterval)
	defer pollTicker.Stop()

	startTime := m.cfg.Clock.Now()

	for attempt := uint32(1); ; attempt++ {
		log.Debugf("Checking closing tx confirmation, attempt %v/%v",
			attempt, m.cfg.MaxPollAttempts)

		confirmed, err := m.cfg.Observer.IsClosingTxConfirmed(
			ctx, record,
		)
		if err != nil {
			return err
		}

		if confirmed {
			record.Status = chanstore.StatusConfirmedClosed

			log.Infof("Closing tx confirmed at depth %v after "+
				"%v attempt(s) in %v", record.MinSafeDepth,
				attempt, m.cfg.Clock.Now().Sub(startTime))

			return nil
		}

		if attempt >= m.cfg.MaxPollAttempts {
			record.Status = chanstore.StatusCloseFailed

			return ErrClosingNotConfirmed
		}

		pollTicker.Resume()
		select {
		case <-pollTicker.Ticks():
			pollTicker.Pause()

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

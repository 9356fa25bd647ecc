package chanstate

// Channel is the live, in-memory channel object owned by the protocol
// library. The persistence layer only relies on the small surface below: a
// way to extract the current negotiated state before a save, and a way to
// overlay a previously persisted state onto a freshly constructed channel
// skeleton during rehydration.
type Channel interface {
	// Snapshot returns a point-in-time copy of the channel's full
	// negotiated state.
	Snapshot() *Snapshot

	// RestoreSnapshot overlays the passed snapshot onto the channel,
	// replacing the channel's protocol state wholesale. After a
	// successful restore the channel must behave identically to the
	// channel the snapshot was taken from.
	RestoreSnapshot(*Snapshot) error

	// LocalBalance returns the settled local balance.
	LocalBalance() MilliSatoshi

	// RemoteBalance returns the settled remote balance.
	RemoteBalance() MilliSatoshi

	// ActiveHtlcs returns the set of HTLCs pending in the local
	// commitment.
	ActiveHtlcs() []HTLC

	// CommitIndexes returns the local and remote commitment state
	// numbers.
	CommitIndexes() (uint64, uint64)
}

package chanstore

import (
	"encoding/json"
	"testing"

	fn "github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/knocte/gwallet/keychain"
)

// TestRecordRoundTrip asserts that a record survives an encode/decode cycle
// with every field intact.
func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	record := genTestRecord(t)
	record.Status = StatusClosing
	record.ClosingTxID = fn.Some(testHash)

	encoded, err := json.Marshal(record)
	require.NoError(t, err)

	var decoded ChannelRecord
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	assertRecordEqual(t, record, &decoded)
	require.Equal(t, fn.Some(testHash), decoded.ClosingTxID)
}

// TestRecordOmitsClosingTxID asserts that an open channel's record carries no
// closing_txid field at all, rather than an empty one.
func TestRecordOmitsClosingTxID(t *testing.T) {
	t.Parallel()

	record := genTestRecord(t)

	encoded, err := json.Marshal(record)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &fields))
	require.NotContains(t, fields, "closing_txid")
}

// TestRecordDecodeValidation asserts that a record with any invalid field is
// rejected wholesale.
func TestRecordDecodeValidation(t *testing.T) {
	t.Parallel()

	base, err := json.Marshal(genTestRecord(t))
	require.NoError(t, err)

	mutate := func(t *testing.T, field, value string) []byte {
		t.Helper()

		var fields map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(base, &fields))
		fields[field] = json.RawMessage(value)

		mutated, err := json.Marshal(fields)
		require.NoError(t, err)

		return mutated
	}

	testCases := []struct {
		name    string
		field   string
		value   string
		wantErr error
	}{
		{
			name:  "future version",
			field: "version",
			value: "99",
		},
		{
			name:    "truncated seed",
			field:   "key_derivation_seed",
			value:   `"deadbeef"`,
			wantErr: keychain.ErrInvalidSeed,
		},
		{
			name:  "seed not hex",
			field: "key_derivation_seed",
			value: `"zz"`,
		},
		{
			name:  "unknown network",
			field: "network",
			value: `"litecoin"`,
		},
		{
			name:  "bad node id",
			field: "remote_node_id",
			value: `"0200"`,
		},
		{
			name:  "unknown status",
			field: "status",
			value: `"half-closed"`,
		},
		{
			name:  "bad closing txid",
			field: "closing_txid",
			value: `"xyz"`,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var decoded ChannelRecord
			err := json.Unmarshal(
				mutate(t, tc.field, tc.value), &decoded,
			)
			require.Error(t, err)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

// TestRecordEncodeIncomplete asserts that a record missing any of its
// required reference fields fails to encode with an error instead of
// panicking, so a half-constructed channel can never reach disk.
func TestRecordEncodeIncomplete(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(*ChannelRecord)
	}{
		{
			name:   "no network",
			mutate: func(r *ChannelRecord) { r.Network = nil },
		},
		{
			name:   "no remote node id",
			mutate: func(r *ChannelRecord) { r.RemoteNodeID = nil },
		},
		{
			name: "no remote endpoint",
			mutate: func(r *ChannelRecord) {
				r.RemoteEndpoint = nil
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			record := genTestRecord(t)
			tc.mutate(record)

			_, err := json.Marshal(record)
			require.Error(t, err)
		})
	}
}

// TestChannelStatusNames asserts the persisted status names stay stable.
func TestChannelStatusNames(t *testing.T) {
	t.Parallel()

	statuses := []ChannelStatus{
		StatusOpen, StatusClosing, StatusConfirmedClosed,
		StatusCloseFailed,
	}
	for _, status := range statuses {
		parsed, err := parseChannelStatus(status.String())
		require.NoError(t, err)
		require.Equal(t, status, parsed)
	}

	_, err := parseChannelStatus("unknown<42>")
	require.Error(t, err)

	// The seed must never surface through the status or record stringers.
	require.NotContains(t, genTestRecord(t).Seed.String(), "81b637d8")
}

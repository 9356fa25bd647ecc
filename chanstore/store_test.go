package chanstore

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	fn "github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/knocte/gwallet/chanstate"
	"github.com/knocte/gwallet/keychain"
)

var (
	testSeedBytes = []byte{
		0x81, 0xb6, 0x37, 0xd8, 0xfc, 0xd2, 0xc6, 0xda,
		0x63, 0x59, 0xe6, 0x96, 0x31, 0x13, 0xa1, 0x17,
		0xd8, 0x72, 0x1d, 0x91, 0xaa, 0xd5, 0xd9, 0xd8,
		0xfc, 0xd2, 0xc6, 0xda, 0x63, 0x59, 0xe6, 0x96,
	}

	testHash = chainhash.Hash{
		0xb7, 0x94, 0x38, 0x5f, 0x2d, 0x1e, 0xf7, 0xab,
		0x4d, 0x92, 0x73, 0xd1, 0x90, 0x63, 0x81, 0xb4,
		0x4f, 0x2f, 0x6f, 0x25, 0x18, 0xa3, 0xef, 0xb9,
		0x64, 0x49, 0x18, 0x83, 0x31, 0x98, 0x47, 0x53,
	}
)

// genTestRecord creates a fully populated channel record for testing.
func genTestRecord(t *testing.T) *ChannelRecord {
	t.Helper()

	seed, err := keychain.NewChannelSeed(testSeedBytes)
	require.NoError(t, err)

	remotePriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var rHash [32]byte
	copy(rHash[:], testHash[:])

	return &ChannelRecord{
		Seed:         seed,
		Network:      &chaincfg.RegressionNetParams,
		RemoteNodeID: remotePriv.PubKey(),
		Snapshot: &chanstate.Snapshot{
			Version:     chanstate.SnapshotVersion,
			ChanType:    chanstate.SingleFunderTweakless,
			IsInitiator: true,
			FundingOutpoint: wire.OutPoint{
				Hash:  testHash,
				Index: 4,
			},
			LocalCommitIndex:  11,
			RemoteCommitIndex: 11,
			LocalCommitment: chanstate.CommitmentSpec{
				Htlcs: []chanstate.HTLC{{
					Incoming:      true,
					Amount:        42000,
					RHash:         rHash,
					RefundTimeout: 700100,
					HtlcIndex:     2,
				}},
				FeeRatePerKw: 2500,
				ToLocal:      7_000_000_000,
				ToRemote:     2_999_958_000,
			},
			RemoteCommitment: chanstate.CommitmentSpec{
				FeeRatePerKw: 2500,
				ToLocal:      2_999_958_000,
				ToRemote:     7_000_000_000,
			},
			Features: chanstate.NewFeatureVector(
				chanstate.DataLossProtectOptional,
				chanstate.StaticRemoteKeyOptional,
			),
			RevocationState: []byte{0x01, 0x02, 0x03},
			Extensions:      json.RawMessage(`{"n":1}`),
		},
		OwnerAccount: "btc-account-0",
		RemoteEndpoint: &net.TCPAddr{
			IP:   net.ParseIP("203.0.113.7"),
			Port: 9735,
		},
		MinSafeDepth: 6,
		Status:       StatusOpen,
		ClosingTxID:  fn.None[chainhash.Hash](),
	}
}

// assertRecordEqual asserts structural equality of two records across every
// field, the nested snapshot included.
func assertRecordEqual(t *testing.T, a, b *ChannelRecord) {
	t.Helper()

	if a.Seed != b.Seed {
		t.Fatalf("seeds don't match")
	}
	if a.Network.Name != b.Network.Name {
		t.Fatalf("networks don't match: %v vs %v", a.Network.Name,
			b.Network.Name)
	}
	if !a.RemoteNodeID.IsEqual(b.RemoteNodeID) {
		t.Fatalf("remote node ids don't match: %x vs %x",
			a.RemoteNodeID.SerializeCompressed(),
			b.RemoteNodeID.SerializeCompressed())
	}
	if a.OwnerAccount != b.OwnerAccount {
		t.Fatalf("owner accounts don't match: %v vs %v",
			a.OwnerAccount, b.OwnerAccount)
	}
	if a.RemoteEndpoint.String() != b.RemoteEndpoint.String() {
		t.Fatalf("endpoints don't match: %v vs %v", a.RemoteEndpoint,
			b.RemoteEndpoint)
	}
	if a.MinSafeDepth != b.MinSafeDepth {
		t.Fatalf("min safe depths don't match: %v vs %v",
			a.MinSafeDepth, b.MinSafeDepth)
	}
	if a.Status != b.Status {
		t.Fatalf("statuses don't match: %v vs %v", a.Status, b.Status)
	}
	if a.ClosingTxID != b.ClosingTxID {
		t.Fatalf("closing txids don't match")
	}

	snapA, snapB := a.Snapshot, b.Snapshot
	if !snapA.Features.Equals(snapB.Features) {
		t.Fatalf("features don't match: %v vs %v", snapA.Features,
			snapB.Features)
	}

	// The extensions document may be reformatted by an indenting encoder,
	// so it is compared for JSON equality rather than byte equality.
	require.JSONEq(t, string(snapA.Extensions), string(snapB.Extensions))

	// Blank out the fields compared above for the remaining deep
	// comparison.
	cmpA, cmpB := snapA.Copy(), snapB.Copy()
	cmpA.Features, cmpB.Features = nil, nil
	cmpA.Extensions, cmpB.Extensions = nil, nil
	if !reflect.DeepEqual(cmpA, cmpB) {
		t.Fatalf("snapshots don't match: %v vs %v", spew.Sdump(cmpA),
			spew.Sdump(cmpB))
	}
}

// TestSaveLoadRoundTrip asserts that a record saved through the store loads
// back structurally equal, and that the channel directory is created
// lazily.
func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	accountRoot := t.TempDir()
	store := NewStore(accountRoot)

	// The LN directory must not exist before the first save.
	_, err := os.Stat(store.Dir())
	require.True(t, os.IsNotExist(err))

	record := genTestRecord(t)
	require.NoError(t, store.Save(record, "chan-0.json"))

	require.Equal(
		t, filepath.Join(accountRoot, ChannelDirName), store.Dir(),
	)

	loaded, err := store.Load(store.FilePath("chan-0.json"))
	require.NoError(t, err)

	assertRecordEqual(t, record, loaded)

	// No staging file may linger after a completed save.
	_, err = os.Stat(store.FilePath("chan-0.json") + tempFileSuffix)
	require.True(t, os.IsNotExist(err))
}

// TestSaveIsFullOverwrite asserts that saving record A then record B under
// the same file name leaves only B recoverable, with no fields of A leaking
// into the loaded result.
func TestSaveIsFullOverwrite(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	recordA := genTestRecord(t)
	recordA.Status = StatusClosing
	recordA.ClosingTxID = fn.Some(testHash)
	recordA.OwnerAccount = "btc-account-a"
	require.NoError(t, store.Save(recordA, "chan-0.json"))

	recordB := genTestRecord(t)
	recordB.OwnerAccount = "btc-account-b"
	recordB.Snapshot.LocalCommitIndex = 99
	require.NoError(t, store.Save(recordB, "chan-0.json"))

	loaded, err := store.Load(store.FilePath("chan-0.json"))
	require.NoError(t, err)

	assertRecordEqual(t, recordB, loaded)

	// In particular, A's closing txid must not survive.
	require.True(t, loaded.ClosingTxID.IsNone())
	require.Equal(t, StatusOpen, loaded.Status)
}

// TestLoadFileNotFound asserts that loading a non-existent file fails with
// ErrFileNotFound, which callers can tell apart from corruption.
func TestLoadFileNotFound(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	_, err := store.Load(store.FilePath("never-existed.json"))
	require.ErrorIs(t, err, ErrFileNotFound)
	require.NotErrorIs(t, err, ErrCorruptRecord)
}

// TestLoadCorruptRecord asserts that undecodable contents fail with
// ErrCorruptRecord and never yield a partial record.
func TestLoadCorruptRecord(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	require.NoError(t, os.MkdirAll(store.Dir(), 0o700))

	corrupt := map[string]string{
		"garbage.json":  "not json at all",
		"bad-seed.json": `{"version": 0, "key_derivation_seed": "ab"}`,
	}

	for fileName, contents := range corrupt {
		path := store.FilePath(fileName)
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

		record, err := store.Load(path)
		require.ErrorIs(t, err, ErrCorruptRecord, "file: %v", fileName)
		require.NotErrorIs(t, err, ErrFileNotFound)
		require.Nil(t, record)
	}
}

// TestConcurrentSavesSameChannel asserts that concurrent saves of the same
// channel file never interleave: whatever save wins, the file decodes
// cleanly afterwards.
func TestConcurrentSavesSameChannel(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	records := make([]*ChannelRecord, 10)
	for i := range records {
		records[i] = genTestRecord(t)
		records[i].Snapshot.LocalCommitIndex = uint64(i)
	}

	var wg sync.WaitGroup
	saveErrs := make(chan error, len(records))
	for _, record := range records {
		wg.Add(1)
		go func(record *ChannelRecord) {
			defer wg.Done()
			saveErrs <- store.Save(record, "chan-0.json")
		}(record)
	}
	wg.Wait()
	close(saveErrs)

	for err := range saveErrs {
		require.NoError(t, err)
	}

	loaded, err := store.Load(store.FilePath("chan-0.json"))
	require.NoError(t, err)
	require.Less(t, loaded.Snapshot.LocalCommitIndex, uint64(10))
}

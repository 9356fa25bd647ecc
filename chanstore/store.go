package chanstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/knocte/gwallet/keychain"
)

const (
	// ChannelDirName is the name of the directory, under the per-account
	// configuration root, in which all channel record files are stored.
	ChannelDirName = "LN"

	// channelDirPermissions is the mode the channel directory is created
	// with. Record files contain key seeds, so the directory is owner
	// only.
	channelDirPermissions = 0o700

	// tempFileSuffix is the suffix of the staging file a record is
	// written to before being renamed over the main record file.
	tempFileSuffix = ".tmp"
)

var (
	// ErrFileNotFound is returned when attempting to load a channel
	// record file that does not exist. It is distinguishable from
	// ErrCorruptRecord so operators can tell "never existed" apart from
	// "data corruption".
	ErrFileNotFound = errors.New("channel record file not found")

	// ErrCorruptRecord is returned when a channel record file exists but
	// its contents cannot be decoded. A corrupt record blocks
	// rehydration entirely; no partial channel is ever produced.
	ErrCorruptRecord = errors.New("corrupt channel record")
)

// Store reads and writes channel records to per-channel files inside a
// dedicated directory under the wallet account's configuration root. The
// store holds no cache: every load re-reads from disk and every save
// re-encodes the record it's given.
type Store struct {
	dir string

	// mtx guards fileLocks.
	mtx sync.Mutex

	// fileLocks serializes writers of the same record file, so that
	// saves for a single channel are applied in the order the protocol
	// state advanced. Writers of distinct channels do not contend.
	fileLocks map[string]*sync.Mutex
}

// NewStore creates a store rooted at the channel directory beneath the
// passed per-account configuration root. The directory itself is created
// lazily on first save.
func NewStore(accountRoot string) *Store {
	return &Store{
		dir:       filepath.Join(accountRoot, ChannelDirName),
		fileLocks: make(map[string]*sync.Mutex),
	}
}

// Dir returns the directory all record files are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// FilePath returns the full path of the record file with the given name.
func (s *Store) FilePath(fileName string) string {
	return filepath.Join(s.dir, fileName)
}

// fileLock returns the write lock of the named record file, creating it on
// first use.
func (s *Store) fileLock(fileName string) *sync.Mutex {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	lock, ok := s.fileLocks[fileName]
	if !ok {
		lock = &sync.Mutex{}
		s.fileLocks[fileName] = lock
	}

	return lock
}

// Save writes the full record to the file with the given name inside the
// channel directory, overwriting any existing file of the same name. The
// write goes to a staging file first and is then atomically renamed into
// place, so a concurrent reader can never observe a half-written record.
func (s *Store) Save(record *ChannelRecord, fileName string) error {
	payload, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return fmt.Errorf("unable to encode channel record: %w", err)
	}

	return s.writeFile(fileName, payload)
}

// Load reads and decodes the record file at the passed path. The path is
// arbitrary: records saved by this store as well as files relocated by the
// user can be loaded.
func (s *Store) Load(filePath string) (*ChannelRecord, error) {
	payload, err := os.ReadFile(filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %v", ErrFileNotFound, filePath)
	case err != nil:
		return nil, err
	}

	return decodeRecord(payload)
}

// SaveEncrypted is like Save, but encrypts the encoded record with a key
// derived from the passed key ring before writing it out.
func (s *Store) SaveEncrypted(record *ChannelRecord, fileName string,
	keyRing keychain.KeyRing) error {

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("unable to encode channel record: %w", err)
	}

	ciphertext, err := encryptPayload(payload, keyRing)
	if err != nil {
		return fmt.Errorf("unable to encrypt channel record: %w", err)
	}

	return s.writeFile(fileName, ciphertext)
}

// LoadEncrypted reads, decrypts and decodes the record file at the passed
// path. The key ring must be backed by the same seed that encrypted the
// record in the first place.
func (s *Store) LoadEncrypted(filePath string,
	keyRing keychain.KeyRing) (*ChannelRecord, error) {

	ciphertext, err := os.ReadFile(filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %v", ErrFileNotFound, filePath)
	case err != nil:
		return nil, err
	}

	payload, err := decryptPayload(ciphertext, keyRing)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	return decodeRecord(payload)
}

// decodeRecord decodes a record payload, mapping any failure to
// ErrCorruptRecord.
func decodeRecord(payload []byte) (*ChannelRecord, error) {
	var record ChannelRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	return &record, nil
}

// writeFile stages the payload in a temporary file, syncs it, and renames
// it over the main record file. The rename relies on the atomic rename
// property most widely used file systems have.
func (s *Store) writeFile(fileName string, payload []byte) error {
	lock := s.fileLock(fileName)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(s.dir, channelDirPermissions); err != nil {
		return fmt.Errorf("unable to create channel directory: %w",
			err)
	}

	filePath := s.FilePath(fileName)
	tempFilePath := filePath + tempFileSuffix

	log.Debugf("Updating channel record at %v", filePath)

	// If a stale staging file is still around from an interrupted prior
	// save, clear it out first.
	if _, err := os.Stat(tempFilePath); err == nil {
		log.Infof("Found old temp channel record %v, removing "+
			"before swap", tempFilePath)

		if err := os.Remove(tempFilePath); err != nil {
			return fmt.Errorf("unable to remove temp record "+
				"file: %w", err)
		}
	}

	tempFile, err := os.Create(tempFilePath)
	if err != nil {
		return fmt.Errorf("unable to create temp record file: %w",
			err)
	}
	defer os.Remove(tempFilePath)

	if _, err := tempFile.Write(payload); err != nil {
		tempFile.Close()
		return fmt.Errorf("unable to write temp record file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("unable to sync temp record file: %w", err)
	}

	// Close before the rename, as some OSes don't support renaming a
	// file that's still open.
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("unable to close temp record file: %w", err)
	}

	return os.Rename(tempFilePath, filePath)
}

// Package accounts provides snapshot export and import for the accounts database.
package accounts

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/x1-tokensale/internal/types"
)

// Snapshot file format version.
const snapshotVersion uint32 = 1

// Snapshot file magic bytes for format validation.
var snapshotMagic = []byte{'X', '1', 'T', 'S'} // X1 TokenSale snapshot

// SnapshotHeader contains metadata about a snapshot.
type SnapshotHeader struct {
	// Version is the snapshot format version.
	Version uint32

	// Sequence is the commit sequence at which the snapshot was taken.
	Sequence uint64

	// AccountsCount is the number of accounts in the snapshot.
	AccountsCount uint64

	// AccountsHash is the Merkle root over all accounts at this sequence.
	AccountsHash types.Hash
}

const snapshotHeaderSize = 4 + 4 + 8 + 8 + 32

// WriteSnapshot exports the full accounts database to path.
//
// Snapshot format:
//   - Magic (4 bytes): "X1TS"
//   - Version (4 bytes, little-endian)
//   - Sequence (8 bytes, little-endian)
//   - AccountsCount (8 bytes, little-endian)
//   - AccountsHash (32 bytes)
//   - Accounts stream (zstd compressed), per account:
//   - Pubkey (32 bytes)
//   - AccountSize (4 bytes, little-endian)
//   - AccountData (variable, serialized account)
func WriteSnapshot(db DB, path string) (*SnapshotHeader, error) {
	hash, err := ComputeAccountsHash(db)
	if err != nil {
		return nil, fmt.Errorf("compute accounts hash: %w", err)
	}
	count, err := db.AccountsCount()
	if err != nil {
		return nil, err
	}

	header := SnapshotHeader{
		Version:       snapshotVersion,
		Sequence:      db.Sequence(),
		AccountsCount: count,
		AccountsHash:  hash,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create snapshot file: %w", err)
	}
	defer file.Close()

	bw := bufio.NewWriter(file)
	if err := writeSnapshotHeader(bw, header); err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(bw)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}

	writeAccount := func(pubkey types.Pubkey, account *Account) error {
		if _, err := enc.Write(pubkey[:]); err != nil {
			return err
		}
		data := account.Serialize()
		var sizeBuf [4]byte
		binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(data)))
		if _, err := enc.Write(sizeBuf[:]); err != nil {
			return err
		}
		_, err := enc.Write(data)
		return err
	}

	switch d := db.(type) {
	case *BadgerDB:
		err = d.IterateAccounts(writeAccount)
	case *MemoryDB:
		for pubkey, account := range d.GetAllAccounts() {
			if err = writeAccount(pubkey, account); err != nil {
				break
			}
		}
	default:
		err = ErrInvalidData
	}
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("write accounts: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close zstd stream: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return &header, nil
}

// LoadSnapshot imports accounts from a snapshot file into db.
// The target database should be empty; existing entries are overwritten.
// The accounts hash in the header is verified after loading.
func LoadSnapshot(db DB, path string) (*SnapshotHeader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	br := bufio.NewReader(file)
	header, err := readSnapshotHeader(br)
	if err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	var loaded uint64
	var updates []Update
	for {
		var pubkey types.Pubkey
		if _, err := io.ReadFull(dec, pubkey[:]); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("read snapshot entry: %w", err)
		}

		var sizeBuf [4]byte
		if _, err := io.ReadFull(dec, sizeBuf[:]); err != nil {
			return nil, fmt.Errorf("read snapshot entry: %w", err)
		}
		size := binary.LittleEndian.Uint32(sizeBuf[:])
		if size > MaxAccountDataSize+64 {
			return nil, ErrCorrupted
		}

		raw := make([]byte, size)
		if _, err := io.ReadFull(dec, raw); err != nil {
			return nil, fmt.Errorf("read snapshot entry: %w", err)
		}
		account, err := DeserializeAccount(raw)
		if err != nil {
			return nil, fmt.Errorf("decode account %s: %w", pubkey, err)
		}
		updates = append(updates, Update{Pubkey: pubkey, Account: account})
		loaded++
	}

	if loaded != header.AccountsCount {
		return nil, fmt.Errorf("%w: snapshot has %d accounts, header says %d",
			ErrCorrupted, loaded, header.AccountsCount)
	}
	if err := db.ApplyBatch(updates); err != nil {
		return nil, fmt.Errorf("apply snapshot: %w", err)
	}

	hash, err := ComputeAccountsHash(db)
	if err != nil {
		return nil, err
	}
	if hash != header.AccountsHash {
		return nil, fmt.Errorf("%w: accounts hash mismatch after load", ErrCorrupted)
	}
	return header, nil
}

func writeSnapshotHeader(w io.Writer, h SnapshotHeader) error {
	buf := make([]byte, snapshotHeaderSize)
	copy(buf[0:4], snapshotMagic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.Sequence)
	binary.LittleEndian.PutUint64(buf[16:24], h.AccountsCount)
	copy(buf[24:56], h.AccountsHash[:])
	_, err := w.Write(buf)
	return err
}

func readSnapshotHeader(r io.Reader) (*SnapshotHeader, error) {
	buf := make([]byte, snapshotHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	for i := range snapshotMagic {
		if buf[i] != snapshotMagic[i] {
			return nil, fmt.Errorf("%w: bad snapshot magic", ErrCorrupted)
		}
	}
	h := &SnapshotHeader{
		Version:       binary.LittleEndian.Uint32(buf[4:8]),
		Sequence:      binary.LittleEndian.Uint64(buf[8:16]),
		AccountsCount: binary.LittleEndian.Uint64(buf[16:24]),
	}
	copy(h.AccountsHash[:], buf[24:56])
	if h.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", ErrCorrupted, h.Version)
	}
	return h, nil
}

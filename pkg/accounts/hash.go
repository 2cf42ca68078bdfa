// Package accounts provides hash computation for state audit.
package accounts

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/fortiblox/x1-tokensale/internal/types"
)

// ComputeAccountHash computes the hash of a single account:
// SHA256(lamports || rent_epoch || data || executable || owner || pubkey).
// The field order matches Solana's account hash for familiarity; it is used
// here to fingerprint snapshots and audit sale state.
func ComputeAccountHash(pubkey types.Pubkey, account *Account) types.Hash {
	// lamports (8) + rent_epoch (8) + data + executable (1) + owner (32) + pubkey (32)
	size := 8 + 8 + len(account.Data) + 1 + 32 + 32
	buf := make([]byte, size)
	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], account.Lamports)
	offset += 8

	binary.LittleEndian.PutUint64(buf[offset:], account.RentEpoch)
	offset += 8

	copy(buf[offset:], account.Data)
	offset += len(account.Data)

	if account.Executable {
		buf[offset] = 1
	}
	offset++

	copy(buf[offset:], account.Owner[:])
	offset += 32

	copy(buf[offset:], pubkey[:])

	return sha256.Sum256(buf)
}

// ComputeAccountsHash computes the Merkle root over every account in the
// database, sorted by pubkey. It fingerprints the entire ledger state.
func ComputeAccountsHash(db DB) (types.Hash, error) {
	type entry struct {
		pubkey types.Pubkey
		hash   types.Hash
	}
	var entries []entry

	collect := func(pubkey types.Pubkey, account *Account) error {
		entries = append(entries, entry{pubkey, ComputeAccountHash(pubkey, account)})
		return nil
	}

	switch d := db.(type) {
	case *BadgerDB:
		if err := d.IterateAccounts(collect); err != nil {
			return types.Hash{}, err
		}
	case *MemoryDB:
		for pubkey, account := range d.GetAllAccounts() {
			if err := collect(pubkey, account); err != nil {
				return types.Hash{}, err
			}
		}
	default:
		return types.Hash{}, ErrInvalidData
	}

	sort.Slice(entries, func(i, j int) bool {
		return comparePubkeys(entries[i].pubkey, entries[j].pubkey) < 0
	})

	hashes := make([]types.Hash, len(entries))
	for i, e := range entries {
		hashes[i] = e.hash
	}
	return ComputeMerkleRoot(hashes), nil
}

// ComputeMerkleRoot computes the Merkle root of a list of hashes using a
// binary tree with SHA256.
//
// Tree structure:
//   - Leaf: SHA256(0x00 || hash)
//   - Node: SHA256(0x01 || left || right)
//   - If odd number of nodes, the last is paired with a zero hash.
func ComputeMerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.Hash{}
	}
	if len(hashes) == 1 {
		return computeLeafHash(hashes[0])
	}

	level := make([]types.Hash, len(hashes))
	for i, h := range hashes {
		level[i] = computeLeafHash(h)
	}

	for len(level) > 1 {
		nextLevel := make([]types.Hash, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			var right types.Hash
			if i+1 < len(level) {
				right = level[i+1]
			}
			nextLevel[i/2] = computeNodeHash(left, right)
		}
		level = nextLevel
	}

	return level[0]
}

// computeLeafHash computes SHA256(0x00 || data).
func computeLeafHash(data types.Hash) types.Hash {
	buf := make([]byte, 1+32)
	copy(buf[1:], data[:])
	return sha256.Sum256(buf)
}

// computeNodeHash computes SHA256(0x01 || left || right).
func computeNodeHash(left, right types.Hash) types.Hash {
	buf := make([]byte, 1+32+32)
	buf[0] = 0x01
	copy(buf[1:], left[:])
	copy(buf[33:], right[:])
	return sha256.Sum256(buf)
}

// comparePubkeys compares two pubkeys lexicographically.
func comparePubkeys(a, b types.Pubkey) int {
	for i := 0; i < 32; i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	return 0
}

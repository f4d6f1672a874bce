package solana

import (
	"errors"
	"fmt"
)

type ParsedInstruction struct {
	ProgramID Pubkey
	Accounts  []uint8
	Data      []byte
}

type ParsedLookup struct {
	AccountKey      Pubkey
	WritableIndexes []uint8
	ReadonlyIndexes []uint8
}

type ParsedV0Transaction struct {
	Signatures      [][64]byte
	Message         []byte
	StaticKeys      []Pubkey
	RecentBlockhash [32]byte
	Instructions    []ParsedInstruction
	Lookups         []ParsedLookup

	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// ParseV0Transaction decodes a signed versioned (v0) transaction. Program ids
// must be static keys, which the compiler guarantees.
func ParseV0Transaction(tx []byte) (ParsedV0Transaction, error) {
	var out ParsedV0Transaction
	if len(tx) == 0 {
		return out, errors.New("empty tx")
	}

	sigCount, off, err := decodeShortVecLenAt(tx, 0)
	if err != nil {
		return out, fmt.Errorf("decode signature count: %w", err)
	}
	if off+sigCount*64 > len(tx) {
		return out, errors.New("invalid signature section")
	}
	out.Signatures = make([][64]byte, sigCount)
	for i := range out.Signatures {
		copy(out.Signatures[i][:], tx[off:off+64])
		off += 64
	}
	out.Message = tx[off:]

	if off+4 > len(tx) {
		return out, errors.New("message header truncated")
	}
	if tx[off] != 0x80 {
		return out, errors.New("missing v0 message prefix")
	}
	out.NumRequiredSignatures = tx[off+1]
	out.NumReadonlySignedAccounts = tx[off+2]
	out.NumReadonlyUnsignedAccounts = tx[off+3]
	off += 4

	nKeys, off, err := decodeShortVecLenAt(tx, off)
	if err != nil {
		return out, fmt.Errorf("decode account keys count: %w", err)
	}
	if off+(nKeys*32) > len(tx) {
		return out, errors.New("account keys truncated")
	}
	out.StaticKeys = make([]Pubkey, nKeys)
	for i := range out.StaticKeys {
		copy(out.StaticKeys[i][:], tx[off:off+32])
		off += 32
	}

	if off+32 > len(tx) {
		return out, errors.New("recent blockhash truncated")
	}
	copy(out.RecentBlockhash[:], tx[off:off+32])
	off += 32

	nIxs, off, err := decodeShortVecLenAt(tx, off)
	if err != nil {
		return out, fmt.Errorf("decode instruction count: %w", err)
	}
	out.Instructions = make([]ParsedInstruction, 0, nIxs)
	for i := 0; i < nIxs; i++ {
		if off >= len(tx) {
			return out, errors.New("instruction truncated")
		}
		pidIndex := int(tx[off])
		off++
		if pidIndex >= len(out.StaticKeys) {
			return out, errors.New("invalid program id index")
		}

		var accounts, data []byte
		if accounts, off, err = readShortVecBytes(tx, off); err != nil {
			return out, fmt.Errorf("instruction %d accounts: %w", i, err)
		}
		if data, off, err = readShortVecBytes(tx, off); err != nil {
			return out, fmt.Errorf("instruction %d data: %w", i, err)
		}
		out.Instructions = append(out.Instructions, ParsedInstruction{
			ProgramID: out.StaticKeys[pidIndex],
			Accounts:  accounts,
			Data:      data,
		})
	}

	nLookups, off, err := decodeShortVecLenAt(tx, off)
	if err != nil {
		return out, fmt.Errorf("decode lookup count: %w", err)
	}
	for i := 0; i < nLookups; i++ {
		if off+32 > len(tx) {
			return out, errors.New("lookup key truncated")
		}
		var l ParsedLookup
		copy(l.AccountKey[:], tx[off:off+32])
		off += 32
		if l.WritableIndexes, off, err = readShortVecBytes(tx, off); err != nil {
			return out, fmt.Errorf("lookup %d writable: %w", i, err)
		}
		if l.ReadonlyIndexes, off, err = readShortVecBytes(tx, off); err != nil {
			return out, fmt.Errorf("lookup %d readonly: %w", i, err)
		}
		out.Lookups = append(out.Lookups, l)
	}
	if off != len(tx) {
		return out, errors.New("trailing bytes after message")
	}
	return out, nil
}

func readShortVecBytes(b []byte, off int) ([]byte, int, error) {
	n, off, err := decodeShortVecLenAt(b, off)
	if err != nil {
		return nil, off, err
	}
	if off+n > len(b) {
		return nil, off, errors.New("truncated")
	}
	out := make([]byte, n)
	copy(out, b[off:off+n])
	return out, off + n, nil
}

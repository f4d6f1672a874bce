package solana

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"
)

type LookupTable struct {
	AccountKey Pubkey
	Addresses  []Pubkey
}

type lookupRef struct {
	Table int
	Index uint8
}

type lookupSelection struct {
	AccountKey      Pubkey
	WritableIndexes []uint8
	ReadonlyIndexes []uint8
}

func BuildAndSignV0Transaction(
	recentBlockhash [32]byte,
	feePayer Pubkey,
	signers map[Pubkey]ed25519.PrivateKey,
	instructions []Instruction,
	lookupTables []LookupTable,
) ([]byte, error) {
	msg, accountKeys, header, err := compileV0Message(recentBlockhash, feePayer, instructions, lookupTables)
	if err != nil {
		return nil, err
	}
	return signMessage(msg, accountKeys, header, signers)
}

func compileV0Message(
	recentBlockhash [32]byte,
	feePayer Pubkey,
	instructions []Instruction,
	lookupTables []LookupTable,
) ([]byte, []Pubkey, messageHeader, error) {
	accounts := newAccountSet(feePayer)
	accounts.touchInstructions(instructions)

	programIDs := make(map[Pubkey]struct{}, len(instructions))
	for _, ix := range instructions {
		programIDs[ix.ProgramID] = struct{}{}
	}

	selected, err := selectLookups(accounts, programIDs, lookupTables)
	if err != nil {
		return nil, nil, messageHeader{}, err
	}
	staticKeys, h := accounts.ordered(selected)
	if len(staticKeys) > 0x100 {
		return nil, nil, messageHeader{}, errors.New("too many static account keys")
	}

	indexOf := make(map[Pubkey]uint8, len(staticKeys)+len(selected))
	for i, pk := range staticKeys {
		indexOf[pk] = uint8(i)
	}

	lookups, loadedKeys := buildLookupSelections(accounts, selected, lookupTables)
	for i, pk := range loadedKeys {
		j := len(staticKeys) + i
		if j > 0xff {
			return nil, nil, messageHeader{}, errors.New("too many account keys (static+lookup)")
		}
		indexOf[pk] = uint8(j)
	}

	// v0 message prefix: 0x80 | version (0).
	out := make([]byte, 0, 512)
	out = append(out, 0x80)
	out = append(out, h.NumRequiredSignatures, h.NumReadonlySignedAccounts, h.NumReadonlyUnsignedAccounts)
	out = append(out, encodeShortVecLen(len(staticKeys))...)
	for _, pk := range staticKeys {
		out = append(out, pk[:]...)
	}
	out = append(out, recentBlockhash[:]...)

	out = append(out, encodeShortVecLen(len(instructions))...)
	for _, ix := range instructions {
		pid, ok := indexOf[ix.ProgramID]
		if !ok {
			return nil, nil, messageHeader{}, fmt.Errorf("program id missing from account list: %s", ix.ProgramID.Base58())
		}
		out = append(out, pid)
		out = append(out, encodeShortVecLen(len(ix.Accounts))...)
		for _, am := range ix.Accounts {
			out = append(out, indexOf[am.Pubkey])
		}
		out = append(out, encodeShortVecLen(len(ix.Data))...)
		out = append(out, ix.Data...)
	}

	out = append(out, encodeShortVecLen(len(lookups))...)
	for _, sel := range lookups {
		out = append(out, sel.AccountKey[:]...)
		out = append(out, encodeShortVecLen(len(sel.WritableIndexes))...)
		out = append(out, sel.WritableIndexes...)
		out = append(out, encodeShortVecLen(len(sel.ReadonlyIndexes))...)
		out = append(out, sel.ReadonlyIndexes...)
	}

	return out, staticKeys, h, nil
}

// selectLookups picks non-signer, non-program accounts that a lookup table can
// load. The first table containing a key wins.
func selectLookups(accounts *accountSet, programIDs map[Pubkey]struct{}, lookupTables []LookupTable) (map[Pubkey]lookupRef, error) {
	tableKeys := make(map[Pubkey]struct{}, len(lookupTables))
	for _, lt := range lookupTables {
		tableKeys[lt.AccountKey] = struct{}{}
	}

	tableIndex := make(map[Pubkey]lookupRef, 256)
	for ti, lt := range lookupTables {
		if len(lt.Addresses) > 256 {
			return nil, fmt.Errorf("lookup table %s has too many addresses: %d", lt.AccountKey.Base58(), len(lt.Addresses))
		}
		for i, pk := range lt.Addresses {
			if _, ok := tableIndex[pk]; ok {
				continue
			}
			tableIndex[pk] = lookupRef{Table: ti, Index: uint8(i)}
		}
	}

	selected := make(map[Pubkey]lookupRef, 64)
	for pk, ai := range accounts.infos {
		if ai.IsSigner {
			continue
		}
		if _, ok := programIDs[pk]; ok {
			continue
		}
		if _, ok := tableKeys[pk]; ok {
			continue
		}
		if ref, ok := tableIndex[pk]; ok {
			selected[pk] = ref
		}
	}
	return selected, nil
}

func buildLookupSelections(accounts *accountSet, selected map[Pubkey]lookupRef, lookupTables []LookupTable) ([]lookupSelection, []Pubkey) {
	selections := make([]lookupSelection, len(lookupTables))
	for i, lt := range lookupTables {
		selections[i].AccountKey = lt.AccountKey
	}
	for pk, ref := range selected {
		if accounts.infos[pk].IsWritable {
			selections[ref.Table].WritableIndexes = append(selections[ref.Table].WritableIndexes, ref.Index)
		} else {
			selections[ref.Table].ReadonlyIndexes = append(selections[ref.Table].ReadonlyIndexes, ref.Index)
		}
	}

	// Loaded keys are addressed after the static keys: every table's
	// writable indexes first, then every table's readonly indexes.
	lookups := make([]lookupSelection, 0, len(selections))
	var tables []int
	for ti, sel := range selections {
		sel.WritableIndexes = sortUniqueUint8(sel.WritableIndexes)
		sel.ReadonlyIndexes = sortUniqueUint8(sel.ReadonlyIndexes)
		if len(sel.WritableIndexes) == 0 && len(sel.ReadonlyIndexes) == 0 {
			continue
		}
		lookups = append(lookups, sel)
		tables = append(tables, ti)
	}
	loaded := make([]Pubkey, 0, len(selected))
	for i, sel := range lookups {
		for _, ix := range sel.WritableIndexes {
			loaded = append(loaded, lookupTables[tables[i]].Addresses[ix])
		}
	}
	for i, sel := range lookups {
		for _, ix := range sel.ReadonlyIndexes {
			loaded = append(loaded, lookupTables[tables[i]].Addresses[ix])
		}
	}
	return lookups, loaded
}

func sortUniqueUint8(in []uint8) []uint8 {
	if len(in) == 0 {
		return nil
	}
	out := append([]uint8{}, in...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i := 0; i < len(out); i++ {
		if i > 0 && out[i] == out[i-1] {
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

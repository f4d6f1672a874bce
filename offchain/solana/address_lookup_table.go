package solana

import (
	"encoding/binary"
	"errors"
)

var ErrInvalidAddressLookupTable = errors.New("invalid address lookup table")

const lookupTableMetaSize = 56

// ParseAddressLookupTableAddresses parses the address list from an Address Lookup Table account's raw data.
//
// Format:
//
//	u32  discriminator (1)
//	u64  deactivation_slot
//	u64  last_extended_slot
//	u8   last_extended_slot_start_index
//	u8   has_authority (0|1)
//	[32] authority pubkey (present even when has_authority=0; all-zero pubkey means none)
//	[2]  padding (0)
//	[32]* addresses (rest of the account data)
func ParseAddressLookupTableAddresses(data []byte) ([]Pubkey, error) {
	if len(data) < lookupTableMetaSize {
		return nil, ErrInvalidAddressLookupTable
	}
	if binary.LittleEndian.Uint32(data[0:4]) != 1 {
		return nil, ErrInvalidAddressLookupTable
	}
	if (len(data)-lookupTableMetaSize)%32 != 0 {
		return nil, ErrInvalidAddressLookupTable
	}
	n := (len(data) - lookupTableMetaSize) / 32
	out := make([]Pubkey, n)
	for i := range out {
		off := lookupTableMetaSize + i*32
		copy(out[i][:], data[off:off+32])
	}
	return out, nil
}

func ParseAddressLookupTable(key Pubkey, data []byte) (LookupTable, error) {
	addrs, err := ParseAddressLookupTableAddresses(data)
	if err != nil {
		return LookupTable{}, err
	}
	return LookupTable{AccountKey: key, Addresses: addrs}, nil
}

// EncodeAddressLookupTable produces account data in the layout parsed above
// (no authority, active). It exists for fixtures and local tooling.
func EncodeAddressLookupTable(addrs []Pubkey) []byte {
	out := make([]byte, lookupTableMetaSize, lookupTableMetaSize+32*len(addrs))
	binary.LittleEndian.PutUint32(out[0:4], 1)
	binary.LittleEndian.PutUint64(out[4:12], ^uint64(0))
	for _, a := range addrs {
		out = append(out, a[:]...)
	}
	return out
}

package solana

import (
	"encoding/binary"
)

var (
	SystemProgramID          = MustParsePubkey("11111111111111111111111111111111")
	ComputeBudgetProgramID   = MustParsePubkey("ComputeBudget111111111111111111111111111111")
	TokenProgramID           = MustParsePubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustParsePubkey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

	// NativeMint is the wrapped SOL mint; aggregators use it to denote SOL.
	NativeMint = MustParsePubkey("So11111111111111111111111111111111111111112")
)

const (
	computeBudgetIxSetComputeUnitLimit = 2
	computeBudgetIxSetComputeUnitPrice = 3

	tokenIxTransfer = 3

	associatedTokenIxCreateIdempotent = 1
)

func ComputeBudgetSetComputeUnitLimit(limit uint32) Instruction {
	var data [5]byte
	data[0] = computeBudgetIxSetComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:], limit)
	return Instruction{
		ProgramID: ComputeBudgetProgramID,
		Accounts:  nil,
		Data:      data[:],
	}
}

func ComputeBudgetSetComputeUnitPrice(microLamports uint64) Instruction {
	var data [9]byte
	data[0] = computeBudgetIxSetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return Instruction{
		ProgramID: ComputeBudgetProgramID,
		Accounts:  nil,
		Data:      data[:],
	}
}

// IsSetComputeUnitPrice reports whether ix is a compute budget
// SetComputeUnitPrice instruction.
func IsSetComputeUnitPrice(ix Instruction) bool {
	return ix.ProgramID == ComputeBudgetProgramID && len(ix.Data) > 0 && ix.Data[0] == computeBudgetIxSetComputeUnitPrice
}

// TokenTransfer moves amount base units between two token accounts of the same mint.
func TokenTransfer(source, destination, owner Pubkey, amount uint64) Instruction {
	var data [9]byte
	data[0] = tokenIxTransfer
	binary.LittleEndian.PutUint64(data[1:], amount)
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: source, IsSigner: false, IsWritable: true},
			{Pubkey: destination, IsSigner: false, IsWritable: true},
			{Pubkey: owner, IsSigner: true, IsWritable: false},
		},
		Data: data[:],
	}
}

// CreateAssociatedTokenAccountIdempotent creates owner's token account for mint
// unless it already exists. payer funds the rent.
func CreateAssociatedTokenAccountIdempotent(payer, owner, mint Pubkey) (Instruction, Pubkey, error) {
	ata, err := FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return Instruction{}, Pubkey{}, err
	}
	return Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: ata, IsSigner: false, IsWritable: true},
			{Pubkey: owner, IsSigner: false, IsWritable: false},
			{Pubkey: mint, IsSigner: false, IsWritable: false},
			{Pubkey: SystemProgramID, IsSigner: false, IsWritable: false},
			{Pubkey: TokenProgramID, IsSigner: false, IsWritable: false},
		},
		Data: []byte{associatedTokenIxCreateIdempotent},
	}, ata, nil
}

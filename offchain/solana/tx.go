package solana

import (
	"crypto/ed25519"
	"errors"
	"sort"

	"github.com/mr-tron/base58"
)

var (
	ErrMissingSigner    = errors.New("missing signer for required signature")
	ErrInvalidSignature = errors.New("invalid transaction signature")
)

type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

type messageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

type accountInfo struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
	FirstSeen  int
}

// accountSet merges every account referenced by a message, keeping the
// strongest signer/writable flags and first-seen order.
type accountSet struct {
	infos map[Pubkey]*accountInfo
	seen  int
}

func newAccountSet(feePayer Pubkey) *accountSet {
	s := &accountSet{infos: make(map[Pubkey]*accountInfo, 32)}
	// Fee payer must be a writable signer.
	s.touch(feePayer, true, true)
	return s
}

func (s *accountSet) touch(pk Pubkey, signer, writable bool) {
	if ai, ok := s.infos[pk]; ok {
		ai.IsSigner = ai.IsSigner || signer
		ai.IsWritable = ai.IsWritable || writable
		return
	}
	s.infos[pk] = &accountInfo{
		Pubkey:     pk,
		IsSigner:   signer,
		IsWritable: writable,
		FirstSeen:  s.seen,
	}
	s.seen++
}

func (s *accountSet) touchInstructions(instructions []Instruction) {
	for _, ix := range instructions {
		s.touch(ix.ProgramID, false, false)
		for _, am := range ix.Accounts {
			s.touch(am.Pubkey, am.IsSigner, am.IsWritable)
		}
	}
}

// ordered returns the keys not in skip, grouped signer-writable,
// signer-readonly, writable, readonly, and the matching header.
func (s *accountSet) ordered(skip map[Pubkey]lookupRef) ([]Pubkey, messageHeader) {
	var groups [4][]*accountInfo
	for pk, ai := range s.infos {
		if _, ok := skip[pk]; ok {
			continue
		}
		g := 3
		switch {
		case ai.IsSigner && ai.IsWritable:
			g = 0
		case ai.IsSigner:
			g = 1
		case ai.IsWritable:
			g = 2
		}
		groups[g] = append(groups[g], ai)
	}

	keys := make([]Pubkey, 0, len(s.infos))
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].FirstSeen < g[j].FirstSeen })
		for _, ai := range g {
			keys = append(keys, ai.Pubkey)
		}
	}
	return keys, messageHeader{
		NumRequiredSignatures:       uint8(len(groups[0]) + len(groups[1])),
		NumReadonlySignedAccounts:   uint8(len(groups[1])),
		NumReadonlyUnsignedAccounts: uint8(len(groups[3])),
	}
}

func signMessage(msg []byte, accountKeys []Pubkey, header messageHeader, signers map[Pubkey]ed25519.PrivateKey) ([]byte, error) {
	sigCount := int(header.NumRequiredSignatures)
	out := make([]byte, 0, 3+sigCount*64+len(msg))
	out = append(out, encodeShortVecLen(sigCount)...)
	for i := 0; i < sigCount; i++ {
		priv, ok := signers[accountKeys[i]]
		if !ok || len(priv) != ed25519.PrivateKeySize {
			return nil, ErrMissingSigner
		}
		out = append(out, ed25519.Sign(priv, msg)...)
	}
	return append(out, msg...), nil
}

// TransactionSignature returns the base58 fee-payer signature, which is the
// transaction id the network reports back from sendTransaction.
func TransactionSignature(tx []byte) (string, error) {
	n, off, err := decodeShortVecLenAt(tx, 0)
	if err != nil || n < 1 || off+64 > len(tx) {
		return "", ErrInvalidSignature
	}
	return base58.Encode(tx[off : off+64]), nil
}

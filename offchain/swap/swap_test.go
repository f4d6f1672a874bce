package swap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Abdullah1738/itheum-agent/offchain/jupiter"
	"github.com/Abdullah1738/itheum-agent/offchain/solana"
	"github.com/Abdullah1738/itheum-agent/offchain/txsubmit"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

func filled(b byte) solana.Pubkey {
	var pk solana.Pubkey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

func descriptor(program solana.Pubkey, data []byte) *jupiter.InstructionDescriptor {
	return &jupiter.InstructionDescriptor{
		ProgramID: program.Base58(),
		Accounts:  []jupiter.AccountDescriptor{{Pubkey: filled(9).Base58(), IsWritable: true}},
		Data:      base64.StdEncoding.EncodeToString(data),
	}
}

type fakeAggregator struct {
	quoteErr error
	resp     jupiter.SwapInstructions
	respErr  error

	quotes []jupiter.QuoteRequest
	users  []solana.Pubkey
}

func (f *fakeAggregator) Quote(_ context.Context, req jupiter.QuoteRequest) (json.RawMessage, error) {
	f.quotes = append(f.quotes, req)
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return json.RawMessage(`{"outAmount":"1"}`), nil
}

func (f *fakeAggregator) SwapInstructions(_ context.Context, _ json.RawMessage, user solana.Pubkey) (jupiter.SwapInstructions, error) {
	f.users = append(f.users, user)
	return f.resp, f.respErr
}

type fakeAccounts struct {
	data  map[solana.Pubkey][]byte
	err   error
	calls int
}

func (f *fakeAccounts) MultipleAccountsBase64(_ context.Context, keys []solana.Pubkey) ([][]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = f.data[k]
	}
	return out, nil
}

type fakeSubmitter struct {
	payer solana.Pubkey
	err   error
	reqs  []txsubmit.Request
}

func (f *fakeSubmitter) Payer() solana.Pubkey { return f.payer }

func (f *fakeSubmitter) Submit(_ context.Context, req txsubmit.Request) (string, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	return "swapsig", nil
}

func testConfig() Config {
	return Config{
		InputMint:      solana.NativeMint,
		InputDecimals:  9,
		OutputMint:     filled(4),
		InputBuffer:    DefaultInputBuffer(),
		SlippageBps:    DefaultSlippageBps,
		PriorityFee:    1000,
		MinInputAmount: DefaultMinInputAmount,
	}
}

func TestInputAmount(t *testing.T) {
	cases := []struct {
		native string
		buffer decimal.Decimal
		want   uint64
	}{
		{native: "0.02", buffer: DefaultInputBuffer(), want: 22_000_000},
		{native: "0.000000001", buffer: DefaultInputBuffer(), want: 1},
		{native: "0.123456789", buffer: decimal.Zero, want: 123_456_789},
	}
	for _, tc := range cases {
		got, err := InputAmount(decimal.RequireFromString(tc.native), 9, tc.buffer)
		if err != nil {
			t.Fatalf("InputAmount(%s): %v", tc.native, err)
		}
		if got != tc.want {
			t.Fatalf("InputAmount(%s)=%d, want %d", tc.native, got, tc.want)
		}
	}
}

func TestSwap_SubmitsOrderedInstructionsWithTables(t *testing.T) {
	table := filled(7)
	missing := filled(8)
	agg := &fakeAggregator{resp: jupiter.SwapInstructions{
		ComputeBudgetInstructions:   []jupiter.InstructionDescriptor{*descriptor(solana.ComputeBudgetProgramID, []byte{2, 1})},
		SetupInstructions:           []jupiter.InstructionDescriptor{*descriptor(solana.AssociatedTokenProgramID, []byte{1})},
		SwapInstruction:             descriptor(filled(5), []byte{0xaa}),
		CleanupInstruction:          descriptor(solana.TokenProgramID, []byte{9}),
		AddressLookupTableAddresses: []string{table.Base58(), missing.Base58()},
	}}
	accounts := &fakeAccounts{data: map[solana.Pubkey][]byte{
		table: solana.EncodeAddressLookupTable([]solana.Pubkey{filled(10), filled(11)}),
	}}
	sub := &fakeSubmitter{payer: filled(1)}

	o := New(agg, accounts, sub, testConfig(), nil)
	sig, err := o.Swap(context.Background(), decimal.RequireFromString("0.02"))
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if sig != "swapsig" {
		t.Fatalf("sig=%q", sig)
	}

	if len(agg.quotes) != 1 {
		t.Fatalf("quotes=%d", len(agg.quotes))
	}
	q := agg.quotes[0]
	if q.Amount != 22_000_000 || q.InputMint != solana.NativeMint || q.OutputMint != filled(4) || q.SlippageBps != protocol.Bps(50) {
		t.Fatalf("quote=%+v", q)
	}
	if !slices.Equal(agg.users, []solana.Pubkey{filled(1)}) {
		t.Fatalf("users=%v", agg.users)
	}

	if len(sub.reqs) != 1 {
		t.Fatalf("submits=%d", len(sub.reqs))
	}
	req := sub.reqs[0]
	if req.PriorityFee != 1000 {
		t.Fatalf("priority fee=%d", req.PriorityFee)
	}
	wantPrograms := []solana.Pubkey{solana.ComputeBudgetProgramID, solana.AssociatedTokenProgramID, filled(5), solana.TokenProgramID}
	if len(req.Instructions) != len(wantPrograms) {
		t.Fatalf("instructions=%d", len(req.Instructions))
	}
	for i, want := range wantPrograms {
		if req.Instructions[i].ProgramID != want {
			t.Fatalf("instructions[%d] program=%s, want %s", i, req.Instructions[i].ProgramID, want)
		}
	}
	if !slices.Equal(req.Instructions[2].Data, []byte{0xaa}) {
		t.Fatalf("swap data=%x", req.Instructions[2].Data)
	}

	if len(req.LookupTables) != 1 || req.LookupTables[0].AccountKey != table {
		t.Fatalf("lookup tables=%+v", req.LookupTables)
	}
	if !slices.Equal(req.LookupTables[0].Addresses, []solana.Pubkey{filled(10), filled(11)}) {
		t.Fatalf("table addresses=%v", req.LookupTables[0].Addresses)
	}
}

func TestSwap_NoTablesSkipsAccountFetch(t *testing.T) {
	agg := &fakeAggregator{resp: jupiter.SwapInstructions{SwapInstruction: descriptor(filled(5), []byte{1})}}
	accounts := &fakeAccounts{}
	sub := &fakeSubmitter{payer: filled(1)}

	if _, err := New(agg, accounts, sub, testConfig(), nil).Swap(context.Background(), decimal.RequireFromString("1")); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if accounts.calls != 0 || len(sub.reqs[0].LookupTables) != 0 {
		t.Fatalf("account fetches=%d tables=%d", accounts.calls, len(sub.reqs[0].LookupTables))
	}
}

func TestSwap_RaisesDustToMinimum(t *testing.T) {
	agg := &fakeAggregator{resp: jupiter.SwapInstructions{SwapInstruction: descriptor(filled(5), []byte{1})}}
	sub := &fakeSubmitter{payer: filled(1)}

	// 0.00001 SOL plus the buffer is 11_000 lamports.
	if _, err := New(agg, &fakeAccounts{}, sub, testConfig(), nil).Swap(context.Background(), decimal.RequireFromString("0.00001")); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if got := agg.quotes[0].Amount; got != DefaultMinInputAmount {
		t.Fatalf("quoted amount=%d, want %d", got, DefaultMinInputAmount)
	}

	cfg := testConfig()
	cfg.MinInputAmount = 0
	agg = &fakeAggregator{resp: jupiter.SwapInstructions{SwapInstruction: descriptor(filled(5), []byte{1})}}
	if _, err := New(agg, &fakeAccounts{}, sub, cfg, nil).Swap(context.Background(), decimal.RequireFromString("0.00001")); err != nil {
		t.Fatalf("Swap without minimum: %v", err)
	}
	if got := agg.quotes[0].Amount; got != 11_000 {
		t.Fatalf("quoted amount=%d, want 11000", got)
	}
}

func TestSwap_PriorityFee(t *testing.T) {
	cases := []struct {
		name   string
		budget []jupiter.InstructionDescriptor
		want   uint64
	}{
		{name: "no compute budget", want: 1000},
		{
			name:   "unit limit only",
			budget: []jupiter.InstructionDescriptor{*descriptor(solana.ComputeBudgetProgramID, []byte{2, 0x40, 0x0d, 0x03, 0})},
			want:   1000,
		},
		{
			name: "aggregator sets unit price",
			budget: []jupiter.InstructionDescriptor{
				*descriptor(solana.ComputeBudgetProgramID, []byte{2, 0x40, 0x0d, 0x03, 0}),
				*descriptor(solana.ComputeBudgetProgramID, solana.ComputeBudgetSetComputeUnitPrice(25_000).Data),
			},
			want: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := &fakeAggregator{resp: jupiter.SwapInstructions{
				ComputeBudgetInstructions: tc.budget,
				SwapInstruction:           descriptor(filled(5), []byte{1}),
			}}
			sub := &fakeSubmitter{payer: filled(1)}
			if _, err := New(agg, &fakeAccounts{}, sub, testConfig(), nil).Swap(context.Background(), decimal.RequireFromString("1")); err != nil {
				t.Fatalf("Swap: %v", err)
			}
			req := sub.reqs[0]
			if req.PriorityFee != tc.want {
				t.Fatalf("priority fee=%d, want %d", req.PriorityFee, tc.want)
			}
			if len(req.Instructions) != len(tc.budget)+1 {
				t.Fatalf("instructions=%d", len(req.Instructions))
			}
		})
	}
}

func TestSwap_Failures(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name    string
		agg     *fakeAggregator
		acc     *fakeAccounts
		sub     *fakeSubmitter
		amount  string
		wantErr error
	}{
		{
			name:    "zero amount",
			agg:     &fakeAggregator{},
			amount:  "0",
			wantErr: protocol.ErrValidation,
		},
		{
			name:    "negative amount",
			agg:     &fakeAggregator{},
			amount:  "-0.5",
			wantErr: protocol.ErrValidation,
		},
		{
			name:    "quote",
			agg:     &fakeAggregator{quoteErr: boom},
			amount:  "1",
			wantErr: boom,
		},
		{
			name:    "no instructions",
			agg:     &fakeAggregator{respErr: protocol.ErrNoInstructions},
			amount:  "1",
			wantErr: protocol.ErrNoInstructions,
		},
		{
			name: "undecodable instruction",
			agg: &fakeAggregator{resp: jupiter.SwapInstructions{
				SwapInstruction: &jupiter.InstructionDescriptor{ProgramID: filled(5).Base58(), Data: "***"},
			}},
			amount:  "1",
			wantErr: protocol.ErrMalformedResponse,
		},
		{
			name: "bad lookup table account",
			agg: &fakeAggregator{resp: jupiter.SwapInstructions{
				SwapInstruction:             descriptor(filled(5), []byte{1}),
				AddressLookupTableAddresses: []string{filled(7).Base58()},
			}},
			acc:     &fakeAccounts{data: map[solana.Pubkey][]byte{filled(7): {1, 2, 3}}},
			amount:  "1",
			wantErr: solana.ErrInvalidAddressLookupTable,
		},
		{
			name:    "submit",
			agg:     &fakeAggregator{resp: jupiter.SwapInstructions{SwapInstruction: descriptor(filled(5), []byte{1})}},
			sub:     &fakeSubmitter{err: txsubmit.ErrTransactionFailed},
			amount:  "1",
			wantErr: txsubmit.ErrTransactionFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acc := tc.acc
			if acc == nil {
				acc = &fakeAccounts{}
			}
			sub := tc.sub
			if sub == nil {
				sub = &fakeSubmitter{}
			}
			_, err := New(tc.agg, acc, sub, testConfig(), nil).Swap(context.Background(), decimal.RequireFromString(tc.amount))
			if !errors.Is(err, ErrSwapFailed) || !errors.Is(err, tc.wantErr) {
				t.Fatalf("err=%v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSwap_UnconfirmedKeepsSignature(t *testing.T) {
	agg := &fakeAggregator{resp: jupiter.SwapInstructions{SwapInstruction: descriptor(filled(5), []byte{1})}}
	sub := &fakeSubmitter{err: &txsubmit.UnconfirmedError{Signature: "swap-pending", Err: errors.New("not settled")}}

	_, err := New(agg, &fakeAccounts{}, sub, testConfig(), nil).Swap(context.Background(), decimal.RequireFromString("1"))
	if !errors.Is(err, ErrSwapFailed) || !errors.Is(err, protocol.ErrConfirmationTimeout) {
		t.Fatalf("err=%v", err)
	}
	if sig, ok := txsubmit.SentSignature(err); !ok || sig != "swap-pending" {
		t.Fatalf("SentSignature=%q,%v", sig, ok)
	}
}

func TestResolveLookupTables_AccountCountMismatch(t *testing.T) {
	_, err := ResolveLookupTables(context.Background(), shortReader{}, []solana.Pubkey{filled(1), filled(2)})
	if !errors.Is(err, protocol.ErrMalformedResponse) {
		t.Fatalf("err=%v", err)
	}
}

type shortReader struct{}

func (shortReader) MultipleAccountsBase64(context.Context, []solana.Pubkey) ([][]byte, error) {
	return [][]byte{nil}, nil
}

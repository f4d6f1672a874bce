package txsubmit

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Abdullah1738/itheum-agent/offchain/solana"
	"github.com/Abdullah1738/itheum-agent/offchain/solanarpc"
	"github.com/Abdullah1738/itheum-agent/offchain/wallet"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

type statusReply struct {
	status *solanarpc.SignatureStatus
	err    error
}

type fakeLedger struct {
	blockhashErr error
	sendErr      error
	sendSig      string
	statuses     []statusReply

	sent        [][]byte
	statusCalls int
}

func (f *fakeLedger) LatestBlockhash(context.Context) ([32]byte, error) {
	if f.blockhashErr != nil {
		return [32]byte{}, f.blockhashErr
	}
	return [32]byte{7}, nil
}

func (f *fakeLedger) SendTransaction(_ context.Context, tx []byte, skipPreflight bool) (string, error) {
	if !skipPreflight {
		return "", errors.New("preflight must be skipped")
	}
	f.sent = append(f.sent, tx)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.sendSig, nil
}

func (f *fakeLedger) SignatureStatus(context.Context, string) (*solanarpc.SignatureStatus, error) {
	i := f.statusCalls
	f.statusCalls++
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	r := f.statuses[i]
	return r.status, r.err
}

func status(s string) statusReply {
	return statusReply{status: &solanarpc.SignatureStatus{ConfirmationStatus: s}}
}

func testWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 1
	w, err := wallet.FromPrivateKey(ed25519.NewKeyFromSeed(seed))
	if err != nil {
		t.Fatalf("FromPrivateKey: %v", err)
	}
	return w
}

func fastOptions() Options {
	return Options{SettleDelay: 0, PollInterval: 0, MaxAttempts: 4}
}

func transferIx(w *wallet.Wallet) solana.Instruction {
	var a, b solana.Pubkey
	a[0], b[0] = 1, 2
	return solana.TokenTransfer(a, b, w.PublicKey(), 5)
}

func TestIsSettled(t *testing.T) {
	cases := map[string]bool{
		"finalized": true,
		"confirmed": true,
		"processed": false,
		"":          false,
		"Finalized": false,
		"unknown":   false,
	}
	for in, want := range cases {
		if got := IsSettled(in); got != want {
			t.Fatalf("IsSettled(%q)=%v, want %v", in, got, want)
		}
	}
}

func TestSubmit_PrependsPriorityFee(t *testing.T) {
	w := testWallet(t)
	ledger := &fakeLedger{sendSig: "", statuses: []statusReply{status("confirmed")}}
	s := New(ledger, w, fastOptions(), nil)

	sig, err := s.Submit(context.Background(), Request{Instructions: []solana.Instruction{transferIx(w)}, PriorityFee: 50_000})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(ledger.sent) != 1 {
		t.Fatalf("sent=%d", len(ledger.sent))
	}

	localSig, err := solana.TransactionSignature(ledger.sent[0])
	if err != nil {
		t.Fatalf("TransactionSignature: %v", err)
	}
	if sig != localSig {
		t.Fatalf("sig=%q, want local signature %q", sig, localSig)
	}

	parsed, err := solana.ParseV0Transaction(ledger.sent[0])
	if err != nil {
		t.Fatalf("ParseV0Transaction: %v", err)
	}
	if len(parsed.Instructions) != 2 {
		t.Fatalf("instructions=%d", len(parsed.Instructions))
	}
	if parsed.Instructions[0].ProgramID != solana.ComputeBudgetProgramID {
		t.Fatalf("instructions[0] program=%s", parsed.Instructions[0].ProgramID)
	}
	if want := solana.ComputeBudgetSetComputeUnitPrice(50_000).Data; !bytes.Equal(parsed.Instructions[0].Data, want) {
		t.Fatalf("compute budget data=%x, want %x", parsed.Instructions[0].Data, want)
	}
	if parsed.Instructions[1].ProgramID != solana.TokenProgramID {
		t.Fatalf("instructions[1] program=%s", parsed.Instructions[1].ProgramID)
	}
	if parsed.StaticKeys[0] != w.PublicKey() {
		t.Fatalf("fee payer=%s", parsed.StaticKeys[0])
	}
	if parsed.RecentBlockhash != [32]byte{7} {
		t.Fatalf("blockhash=%x", parsed.RecentBlockhash)
	}
}

func TestSubmit_NoPriorityFee(t *testing.T) {
	w := testWallet(t)
	ledger := &fakeLedger{sendSig: "sig", statuses: []statusReply{status("finalized")}}
	s := New(ledger, w, fastOptions(), nil)

	sig, err := s.Submit(context.Background(), Request{Instructions: []solana.Instruction{transferIx(w)}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sig != "sig" {
		t.Fatalf("sig=%q", sig)
	}

	parsed, err := solana.ParseV0Transaction(ledger.sent[0])
	if err != nil {
		t.Fatalf("ParseV0Transaction: %v", err)
	}
	if len(parsed.Instructions) != 1 || parsed.Instructions[0].ProgramID != solana.TokenProgramID {
		t.Fatalf("instructions=%+v", parsed.Instructions)
	}
}

func TestSubmit_SendRejectionSkipsPolling(t *testing.T) {
	w := testWallet(t)
	ledger := &fakeLedger{sendErr: errors.New("blockhash expired")}
	s := New(ledger, w, fastOptions(), nil)

	_, err := s.Submit(context.Background(), Request{Instructions: []solana.Instruction{transferIx(w)}})
	if !errors.Is(err, ErrSubmitRejected) || errors.Is(err, protocol.ErrConfirmationTimeout) {
		t.Fatalf("err=%v", err)
	}
	if _, ok := SentSignature(err); ok {
		t.Fatalf("rejected submission carries a signature: %v", err)
	}
	if ledger.statusCalls != 0 {
		t.Fatalf("statusCalls=%d", ledger.statusCalls)
	}
}

func TestSubmit_ConfirmationTimeout(t *testing.T) {
	w := testWallet(t)
	ledger := &fakeLedger{sendSig: "sig", statuses: []statusReply{status("processed")}}
	s := New(ledger, w, fastOptions(), nil)

	_, err := s.Submit(context.Background(), Request{Instructions: []solana.Instruction{transferIx(w)}})
	if !errors.Is(err, protocol.ErrConfirmationTimeout) || errors.Is(err, ErrSubmitRejected) {
		t.Fatalf("err=%v", err)
	}
	if ledger.statusCalls != 4 {
		t.Fatalf("statusCalls=%d", ledger.statusCalls)
	}
}

func TestSubmit_TimeoutKeepsSentSignature(t *testing.T) {
	w := testWallet(t)
	ledger := &fakeLedger{sendSig: "5sentButPending", statuses: []statusReply{status("processed")}}
	s := New(ledger, w, fastOptions(), nil)

	_, err := s.Submit(context.Background(), Request{Instructions: []solana.Instruction{transferIx(w)}})
	var ue *UnconfirmedError
	if !errors.As(err, &ue) {
		t.Fatalf("err=%T %v, want *UnconfirmedError", err, err)
	}
	if ue.Signature != "5sentButPending" {
		t.Fatalf("signature=%q", ue.Signature)
	}
	if sig, ok := SentSignature(fmt.Errorf("transfer: %w", err)); !ok || sig != "5sentButPending" {
		t.Fatalf("SentSignature=%q,%v", sig, ok)
	}
	if !strings.Contains(err.Error(), "5sentButPending") || !strings.Contains(err.Error(), "after 4 attempts") {
		t.Fatalf("err=%v", err)
	}
}

func TestSubmit_StatusQueryFailuresTimeOut(t *testing.T) {
	w := testWallet(t)
	ledger := &fakeLedger{sendSig: "sig", statuses: []statusReply{{err: errors.New("rpc down")}}}
	s := New(ledger, w, fastOptions(), nil)

	_, err := s.Submit(context.Background(), Request{Instructions: []solana.Instruction{transferIx(w)}})
	if !errors.Is(err, protocol.ErrConfirmationTimeout) || !strings.Contains(err.Error(), "rpc down") {
		t.Fatalf("err=%v", err)
	}
	if ledger.statusCalls != 4 {
		t.Fatalf("statusCalls=%d", ledger.statusCalls)
	}
}

func TestSubmit_EventuallySettles(t *testing.T) {
	w := testWallet(t)
	ledger := &fakeLedger{sendSig: "sig", statuses: []statusReply{
		{status: nil},
		status("processed"),
		status("confirmed"),
	}}
	s := New(ledger, w, fastOptions(), nil)

	sig, err := s.Submit(context.Background(), Request{Instructions: []solana.Instruction{transferIx(w)}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sig != "sig" || ledger.statusCalls != 3 {
		t.Fatalf("sig=%q statusCalls=%d", sig, ledger.statusCalls)
	}
}

func TestSubmit_OnChainFailureIsNotRetried(t *testing.T) {
	w := testWallet(t)
	failed := &solanarpc.SignatureStatus{
		ConfirmationStatus: "confirmed",
		Err:                json.RawMessage(`{"InstructionError":[1,{"Custom":1}]}`),
	}
	ledger := &fakeLedger{sendSig: "sig", statuses: []statusReply{{status: failed}}}
	s := New(ledger, w, fastOptions(), nil)

	_, err := s.Submit(context.Background(), Request{Instructions: []solana.Instruction{transferIx(w)}})
	if !errors.Is(err, ErrTransactionFailed) || errors.Is(err, protocol.ErrConfirmationTimeout) {
		t.Fatalf("err=%v", err)
	}
	if _, ok := SentSignature(err); ok {
		t.Fatalf("on-chain failure reported as unconfirmed: %v", err)
	}
	if ledger.statusCalls != 1 {
		t.Fatalf("statusCalls=%d", ledger.statusCalls)
	}
}

func TestSubmit_BlockhashFailure(t *testing.T) {
	w := testWallet(t)
	ledger := &fakeLedger{blockhashErr: protocol.ErrNetwork}
	s := New(ledger, w, fastOptions(), nil)

	_, err := s.Submit(context.Background(), Request{Instructions: []solana.Instruction{transferIx(w)}})
	if !errors.Is(err, ErrBlockhash) || !errors.Is(err, protocol.ErrNetwork) {
		t.Fatalf("err=%v", err)
	}
	if len(ledger.sent) != 0 {
		t.Fatalf("sent=%d", len(ledger.sent))
	}
}

type keylessSigner struct{ pk solana.Pubkey }

func (k keylessSigner) PublicKey() solana.Pubkey { return k.pk }

func (k keylessSigner) Signers() map[solana.Pubkey]ed25519.PrivateKey { return nil }

func TestSubmit_SignFailure(t *testing.T) {
	w := testWallet(t)
	ledger := &fakeLedger{}
	s := New(ledger, keylessSigner{pk: w.PublicKey()}, fastOptions(), nil)

	_, err := s.Submit(context.Background(), Request{Instructions: []solana.Instruction{transferIx(w)}})
	if !errors.Is(err, ErrSign) {
		t.Fatalf("err=%v", err)
	}
	if len(ledger.sent) != 0 {
		t.Fatalf("sent=%d", len(ledger.sent))
	}
}

func TestSubmit_EmptyRequest(t *testing.T) {
	s := New(&fakeLedger{}, testWallet(t), fastOptions(), nil)
	if _, err := s.Submit(context.Background(), Request{}); !errors.Is(err, protocol.ErrValidation) {
		t.Fatalf("err=%v", err)
	}
}

func TestSubmit_CancelledDuringSettleDelay(t *testing.T) {
	w := testWallet(t)
	ledger := &fakeLedger{sendSig: "sig", statuses: []statusReply{status("confirmed")}}
	opts := fastOptions()
	opts.SettleDelay = time.Hour
	s := New(ledger, w, opts, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Submit(ctx, Request{Instructions: []solana.Instruction{transferIx(w)}})
	if !errors.Is(err, protocol.ErrConfirmationTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
	if sig, ok := SentSignature(err); !ok || sig != "sig" {
		t.Fatalf("SentSignature=%q,%v, want the sent signature", sig, ok)
	}
	if ledger.statusCalls != 0 {
		t.Fatalf("statusCalls=%d", ledger.statusCalls)
	}
}

package scanner

import (
	"context"
	"testing"

	"github.com/tos-network/custody/internal/common"
	"github.com/tos-network/custody/internal/database"
	"github.com/tos-network/custody/scheduler"
)

// fakeChain is a minimal in-memory ExternalChain stand-in: blocks map
// block number to the outputs it carries, with no RPC failures, so
// RPCRetrier's happy path never sleeps.
type fakeChain struct {
	network       common.NetworkID
	confirmations uint64
	dust          common.Amount
	window        uint64
	tip           uint64
	blocks        map[uint64][]ScannedOutput
}

func (f *fakeChain) Network() common.NetworkID                { return f.network }
func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) { return f.tip, nil }
func (f *fakeChain) ConfirmationsRequired() uint64             { return f.confirmations }
func (f *fakeChain) BlockOutputs(_ context.Context, n uint64) ([]ScannedOutput, error) {
	return f.blocks[n], nil
}
func (f *fakeChain) DecodeInstruction([]byte) (*scheduler.Instruction, bool) { return nil, false }
func (f *fakeChain) SignableTransaction(scheduler.Plan) (SignableTransaction, error) {
	return SignableTransaction{}, nil
}
func (f *fakeChain) Eventuality(scheduler.Plan, SignableTransaction) scheduler.Eventuality {
	return scheduler.Eventuality{}
}
func (f *fakeChain) Fingerprint([]byte) [32]byte                 { return [32]byte{} }
func (f *fakeChain) Broadcast(context.Context, []byte) error     { return nil }
func (f *fakeChain) AttachSignature(SignableTransaction, []byte) ([]byte, error) { return nil, nil }
func (f *fakeChain) DustThreshold() common.Amount                { return f.dust }
func (f *fakeChain) WindowLength() uint64                        { return f.window }
func (f *fakeChain) NeededFee([]scheduler.Output, []scheduler.Payment, *common.Amount) (*common.Amount, error) {
	return nil, nil
}
func (f *fakeChain) MinOutputs() int { return 1 }

func TestScanOnceAdvancesCursorPastConfirmationDepth(t *testing.T) {
	db := database.OpenMemory()
	defer db.Close()

	chain := &fakeChain{network: common.NetworkBitcoin, confirmations: 2, window: 100, tip: 5}
	s, err := NewScanner(chain, db)
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	_, _, err = s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	cursor, err := s.Cursor()
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if cursor != 3 {
		t.Fatalf("expected cursor at tip-confirmations = 3, got %d", cursor)
	}
}

func TestScanOnceBatchIDSurvivesRestart(t *testing.T) {
	db := database.OpenMemory()
	defer db.Close()

	chain := &fakeChain{
		network: common.NetworkBitcoin, confirmations: 0, window: 100, tip: 1,
		blocks: map[uint64][]ScannedOutput{
			1: {{Output: scheduler.Output{Amount: 5000}, Instruction: &scheduler.Instruction{}}},
		},
	}

	s1, err := NewScanner(chain, db)
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	batch, _, err := s1.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if batch == nil || batch.ID != 1 {
		t.Fatalf("expected batch ID 1, got %v", batch)
	}

	chain.tip = 2
	chain.blocks[2] = []ScannedOutput{{Output: scheduler.Output{Amount: 5000}, Instruction: &scheduler.Instruction{}}}

	s2, err := NewScanner(chain, db)
	if err != nil {
		t.Fatalf("NewScanner (restart): %v", err)
	}
	batch2, _, err := s2.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce (restart): %v", err)
	}
	if batch2 == nil || batch2.ID != 2 {
		t.Fatalf("expected batch ID to continue at 2 after restart, got %v", batch2)
	}
}

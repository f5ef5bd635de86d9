package utxoref

import (
	"context"
	"testing"

	"github.com/tos-network/custody/internal/common"
	"github.com/tos-network/custody/scheduler"
)

func TestChainScansExternalOutputWithInstruction(t *testing.T) {
	c := New(common.NetworkBitcoin, 1, 10)

	var dest [32]byte
	dest[0] = 0xAB
	instr := append(append([]byte{}, dest[:]...), []byte("payload")...)

	c.Submit(Tx{
		ID: [32]byte{1},
		Outputs: []Entry{
			{Value: 5000, Tag: scheduler.OutputExternal, Instruction: instr},
		},
	})
	c.AdvanceBlock()
	c.AdvanceBlock() // bury one block deeper than the 1-confirmation requirement

	tip, err := c.LatestBlockNumber(context.Background())
	if err != nil {
		t.Fatalf("LatestBlockNumber: %v", err)
	}
	if tip != 2 {
		t.Fatalf("expected tip 2, got %d", tip)
	}

	outputs, err := c.BlockOutputs(context.Background(), 1)
	if err != nil {
		t.Fatalf("BlockOutputs: %v", err)
	}
	if len(outputs) != 1 {
		t.Fatalf("expected 1 scanned output, got %d", len(outputs))
	}
	if outputs[0].Output.Amount != 5000 {
		t.Fatalf("expected amount 5000, got %d", outputs[0].Output.Amount)
	}
	if outputs[0].Instruction == nil || outputs[0].Instruction.Destination != dest {
		t.Fatalf("expected decoded instruction destination %x, got %v", dest, outputs[0].Instruction)
	}
}

func TestChainBranchOutputsNotScanned(t *testing.T) {
	c := New(common.NetworkBitcoin, 0, 10)
	c.Submit(Tx{
		ID:      [32]byte{2},
		Outputs: []Entry{{Value: 2000, Tag: scheduler.OutputBranch}},
	})
	c.AdvanceBlock()

	outputs, err := c.BlockOutputs(context.Background(), 1)
	if err != nil {
		t.Fatalf("BlockOutputs: %v", err)
	}
	if len(outputs) != 0 {
		t.Fatalf("expected Branch-tagged outputs excluded from scan results, got %v", outputs)
	}
}

func TestChainNeededFeeScalesWithInputsAndOutputs(t *testing.T) {
	c := New(common.NetworkBitcoin, 0, 10)
	inputs := []scheduler.Output{{ID: [32]byte{1}, Amount: 100000}, {ID: [32]byte{2}, Amount: 100000}}
	payments := []scheduler.Payment{{Destination: []byte("a"), Amount: 1000}, {Destination: []byte("b"), Amount: 2000}}
	change := common.Amount(500)

	fee, err := c.NeededFee(inputs, payments, &change)
	if err != nil {
		t.Fatalf("NeededFee: %v", err)
	}
	if fee == nil {
		t.Fatalf("expected a fee, got nil")
	}
	want := baseFee + 2*perInput + 3*perOutput // 2 payments + 1 change output
	if *fee != want {
		t.Fatalf("expected fee %d, got %d", want, *fee)
	}
}

func TestChainNeededFeeNilWhenInputsCantCoverBaseCost(t *testing.T) {
	c := New(common.NetworkBitcoin, 0, 10)
	inputs := []scheduler.Output{{ID: [32]byte{1}, Amount: 10}}
	fee, err := c.NeededFee(inputs, nil, nil)
	if err != nil {
		t.Fatalf("NeededFee: %v", err)
	}
	if fee != nil {
		t.Fatalf("expected nil fee when inputs can't cover even the base cost, got %v", *fee)
	}
}

func TestChainBuildPlanSignBroadcastEndToEnd(t *testing.T) {
	c := New(common.NetworkBitcoin, 0, 10)
	key := [32]byte{9}
	op := c.Credit(10000, scheduler.OutputExternal)

	payments := []scheduler.Payment{{Destination: []byte("recipient"), Amount: 3000}}
	available := []scheduler.Output{{ID: outpointID(op), Amount: 10000, Tag: scheduler.OutputExternal}}

	plan, _, _, err := scheduler.BuildPlan(key, available, payments, c.MinOutputs(), nil, 0, c.NeededFee)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	unsigned, err := c.SignableTransaction(*plan)
	if err != nil {
		t.Fatalf("SignableTransaction: %v", err)
	}
	signed, err := c.AttachSignature(unsigned, []byte("sig"))
	if err != nil {
		t.Fatalf("AttachSignature: %v", err)
	}
	if err := c.Broadcast(context.Background(), signed); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	want := c.Eventuality(*plan, unsigned)
	got := c.Fingerprint(unsigned.Data)
	if want.Fingerprint != got {
		t.Fatalf("expected a confirmed transaction's Fingerprint to match the Plan's Eventuality")
	}
}

func TestChainBroadcastRejectsEmptyTransaction(t *testing.T) {
	c := New(common.NetworkBitcoin, 0, 10)
	if err := c.Broadcast(context.Background(), nil); err != ErrBroadcastEmpty {
		t.Fatalf("expected ErrBroadcastEmpty, got %v", err)
	}
}

// Package utxoref is a reference ExternalChain implementation over a
// UTXO-style ledger, exercising the scanner/scheduler contract end-to-end
// without any real network dependency. It models the minimum a Bitcoin-
// family chain needs: outpoints, an in-memory chainstate tracking which
// are spent, and a per-output fee rate.
//
// Grounded on rubin-protocol's clients/go/node chainstate/UTXO idiom
// (chainstate.go's outpoint-keyed UTXO set, store/utxo_encoding.go's
// value/covenant-data layout) even though rubin-protocol is not the
// package's teacher; the outpoint and fingerprint hashing follow
// tos-network-gtos's blake256-based ID conventions instead.
package utxoref

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/decred/dcrd/crypto/blake256"

	"github.com/tos-network/custody/internal/common"
	"github.com/tos-network/custody/scanner"
	"github.com/tos-network/custody/scheduler"
)

// Outpoint identifies one UTXO: the transaction that created it and its
// index within that transaction's outputs.
type Outpoint struct {
	TxID [32]byte
	Vout uint32
}

// Entry is one unspent output tracked by the chain, tagged the same way
// scheduler.Output is (External/Branch/Change/Forwarded) plus the raw
// address and instruction bytes a real wire output would carry.
type Entry struct {
	Value       common.Amount
	Address     []byte
	Tag         scheduler.OutputTag
	Instruction []byte // present only on External-tagged outputs
}

// Tx is one confirmed transaction: it spends zero or more prior Outpoints
// and creates the Outputs listed, mirroring consensus.ApplyNonCoinbaseTxBasic's
// spend-then-create shape without covenant/timelock semantics this chain
// doesn't need.
type Tx struct {
	ID      [32]byte
	Spends  []Outpoint
	Outputs []Entry
}

const (
	baseFee   = common.Amount(200)
	perInput  = common.Amount(60)
	perOutput = common.Amount(40)
	dust      = common.Amount(1000)
)

// Chain is an in-memory, UTXO-style ExternalChain. One Chain holds the
// full history of confirmed blocks plus a broadcast-but-unconfirmed
// mempool; AdvanceBlock moves mempool transactions into a new block,
// the same two-phase confirm rubin-protocol's ChainState.ConnectBlock
// models with ApplyNonCoinbaseTxBasic.
type Chain struct {
	mu sync.Mutex

	network common.NetworkID
	confs   uint64
	window  uint64

	blocks  [][]Tx
	mempool []Tx
	utxos   map[Outpoint]Entry
}

// New returns an empty Chain at height 0 with no UTXOs credited yet.
func New(network common.NetworkID, confirmations, window uint64) *Chain {
	return &Chain{
		network: network,
		confs:   confirmations,
		window:  window,
		utxos:   make(map[Outpoint]Entry),
	}
}

// Credit seeds the multisig with a spendable output as of the current
// tip, without requiring a full Tx/block round trip; used to fund a
// Chain in tests before it has scanned any real inbound transfer.
func (c *Chain) Credit(value common.Amount, tag scheduler.OutputTag) Outpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := blake256.New()
	h.Write(uint32Bytes(uint32(len(c.blocks))))
	h.Write(uint32Bytes(uint32(len(c.utxos))))
	var txid [32]byte
	copy(txid[:], h.Sum(nil))
	op := Outpoint{TxID: txid, Vout: uint32(len(c.utxos))}
	c.utxos[op] = Entry{Value: value, Tag: tag}
	return op
}

func uint32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// Submit queues tx into the mempool; it is not visible to BlockOutputs
// until AdvanceBlock includes it in a block. BlockOutputs itself does not
// check confirmation depth; the Scanner applies ConfirmationsRequired.
func (c *Chain) Submit(tx Tx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mempool = append(c.mempool, tx)
}

// AdvanceBlock confirms every mempool transaction into a new block,
// applying its spends and credits to the UTXO set the same way
// consensus.ApplyNonCoinbaseTxBasic folds a transaction into chainstate,
// and returns the new tip height.
func (c *Chain) AdvanceBlock() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	block := c.mempool
	c.mempool = nil
	for _, tx := range block {
		for _, op := range tx.Spends {
			delete(c.utxos, op)
		}
		for i, out := range tx.Outputs {
			c.utxos[Outpoint{TxID: tx.ID, Vout: uint32(i)}] = out
		}
	}
	c.blocks = append(c.blocks, block)
	return uint64(len(c.blocks))
}

func (c *Chain) Network() common.NetworkID { return c.network }

func (c *Chain) LatestBlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.blocks)), nil
}

func (c *Chain) ConfirmationsRequired() uint64 { return c.confs }

func (c *Chain) BlockOutputs(_ context.Context, number uint64) ([]scanner.ScannedOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if number == 0 || number > uint64(len(c.blocks)) {
		return nil, nil
	}
	var out []scanner.ScannedOutput
	for _, tx := range c.blocks[number-1] {
		for i, entry := range tx.Outputs {
			if entry.Tag != scheduler.OutputExternal {
				continue
			}
			id := Outpoint{TxID: tx.ID, Vout: uint32(i)}
			so := scanner.ScannedOutput{Output: scheduler.Output{
				ID:     outpointID(id),
				Amount: entry.Value,
				Tag:    entry.Tag,
			}}
			if instr, ok := c.DecodeInstruction(entry.Instruction); ok {
				so.Instruction = instr
			}
			out = append(out, so)
		}
	}
	return out, nil
}

// outpointID folds an Outpoint into the opaque 32-byte ID scheduler.Output
// carries, the same txid||vout layout store.encodeOutpointKey uses for its
// on-disk key, hashed down to 32 bytes since vout needs to survive
// alongside the txid in a fixed-size field.
func outpointID(op Outpoint) [32]byte {
	h := blake256.New()
	h.Write(op.TxID[:])
	h.Write(uint32Bytes(op.Vout))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (c *Chain) DecodeInstruction(data []byte) (*scheduler.Instruction, bool) {
	if len(data) == 0 || len(data) > scheduler.MaxInstructionDataLen {
		return nil, false
	}
	if len(data) < 32 {
		return nil, false
	}
	instr := &scheduler.Instruction{Data: append([]byte(nil), data[32:]...)}
	copy(instr.Destination[:], data[:32])
	return instr, true
}

func (c *Chain) SignableTransaction(plan scheduler.Plan) (scanner.SignableTransaction, error) {
	var data []byte
	for _, in := range plan.Inputs {
		data = append(data, in.ID[:]...)
	}
	for _, p := range plan.Payments {
		data = append(data, p.Destination...)
		data = append(data, uint32Bytes(uint32(p.Amount))...)
	}
	return scanner.SignableTransaction{PlanID: plan.ID, Data: data}, nil
}

func (c *Chain) Eventuality(plan scheduler.Plan, signed scanner.SignableTransaction) scheduler.Eventuality {
	return scheduler.Eventuality{
		PlanID:      plan.ID,
		Fingerprint: fingerprint(signed.Data),
	}
}

func (c *Chain) Fingerprint(data []byte) [32]byte {
	return fingerprint(data)
}

func fingerprint(data []byte) [32]byte {
	h := blake256.New()
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

var ErrBroadcastEmpty = errors.New("utxoref: cannot broadcast an empty transaction")

func (c *Chain) Broadcast(_ context.Context, signed []byte) error {
	if len(signed) == 0 {
		return ErrBroadcastEmpty
	}
	return nil
}

func (c *Chain) AttachSignature(unsigned scanner.SignableTransaction, signature []byte) ([]byte, error) {
	out := make([]byte, 0, len(unsigned.Data)+len(signature))
	out = append(out, unsigned.Data...)
	out = append(out, signature...)
	return out, nil
}

func (c *Chain) DustThreshold() common.Amount { return dust }

func (c *Chain) WindowLength() uint64 { return c.window }

// NeededFee charges baseFee plus a per-input and per-output marginal
// cost, the flat fee-rate model rubin-protocol's fee field in UtxoEntry
// doesn't itself compute but every UTXO fee estimator in the pack
// reduces to at this level of abstraction. Returns nil only if the
// available inputs can't even cover the base cost of a zero-payment
// transaction.
func (c *Chain) NeededFee(inputs []scheduler.Output, payments []scheduler.Payment, change *common.Amount) (*common.Amount, error) {
	outputs := len(payments)
	if change != nil {
		outputs++
	}
	fee := baseFee + common.Amount(len(inputs))*perInput + common.Amount(outputs)*perOutput
	var total common.Amount
	for _, in := range inputs {
		total += in.Amount
	}
	if total < baseFee+common.Amount(len(inputs))*perInput {
		return nil, nil
	}
	return &fee, nil
}

func (c *Chain) MinOutputs() int { return 1 }

// SortedUTXOs returns every currently unspent Outpoint/Entry pair sorted
// by TxID then Vout, for deterministic test assertions.
func (c *Chain) SortedUTXOs() []struct {
	Outpoint Outpoint
	Entry    Entry
} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]struct {
		Outpoint Outpoint
		Entry    Entry
	}, 0, len(c.utxos))
	for op, e := range c.utxos {
		out = append(out, struct {
			Outpoint Outpoint
			Entry    Entry
		}{op, e})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Outpoint.TxID != out[j].Outpoint.TxID {
			return string(out[i].Outpoint.TxID[:]) < string(out[j].Outpoint.TxID[:])
		}
		return out[i].Outpoint.Vout < out[j].Outpoint.Vout
	})
	return out
}

var _ scanner.ExternalChain = (*Chain)(nil)

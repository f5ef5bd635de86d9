package scanner

import (
	"context"
	"fmt"

	"github.com/tos-network/custody/internal/database"
	"github.com/tos-network/custody/internal/xlog"
	"github.com/tos-network/custody/scheduler"
)

// Scanner walks a single ExternalChain block-by-block, not yet-confirmed
// blocks held back, emitting Batches once their confirmation depth is
// reached. One Scanner exists per (ValidatorSet, NetworkID) pair; its
// cursor is durable so a restart resumes exactly where it left off
// instead of re-scanning or skipping blocks.
type Scanner struct {
	chain   ExternalChain
	db      database.KeyValueStore
	log     *xlog.Logger
	retrier *RPCRetrier

	batchID uint32
}

// NewScanner opens a Scanner over chain, persisting its cursor and last
// issued Batch ID in db, restoring the latter so a restart resumes the
// sequence instead of reissuing already-used IDs (spec.md §3: "IDs
// strictly increase; gaps are forbidden"). RPC calls to chain retry with
// unbounded exponential backoff (RPCRetrier) rather than surfacing a
// transient failure up through ScanOnce.
func NewScanner(chain ExternalChain, db database.KeyValueStore) (*Scanner, error) {
	s := &Scanner{chain: chain, db: db, log: xlog.Root(), retrier: NewRPCRetrier(4)}
	id, err := s.loadBatchID()
	if err != nil {
		return nil, err
	}
	s.batchID = id
	return s, nil
}

func (s *Scanner) cursorKey() []byte {
	return database.Key("scanner-cursor", []byte(s.chain.Network().String()))
}

func (s *Scanner) batchIDKey() []byte {
	return database.Key("scanner-batch-id", []byte(s.chain.Network().String()))
}

func (s *Scanner) loadBatchID() (uint32, error) {
	v, err := s.db.Get(s.batchIDKey())
	if err != nil {
		if err == database.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}
	return uint32(decodeUint64(v)), nil
}

func (s *Scanner) setBatchID(id uint32) error {
	return s.db.Put(s.batchIDKey(), database.Uint64Bytes(uint64(id)))
}

// Cursor returns the last block number fully scanned, or 0 if none.
func (s *Scanner) Cursor() (uint64, error) {
	v, err := s.db.Get(s.cursorKey())
	if err != nil {
		if err == database.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}
	return decodeUint64(v), nil
}

func (s *Scanner) setCursor(n uint64) error {
	return s.db.Put(s.cursorKey(), database.Uint64Bytes(n))
}

func decodeUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// ScanOnce advances the cursor by at most chain.WindowLength() blocks,
// stopping short of any block that hasn't reached ConfirmationsRequired
// depth, and returns a Batch covering every InInstruction-bearing output
// seen in the newly-scanned range (nil if none were found).
func (s *Scanner) ScanOnce(ctx context.Context) (*scheduler.Batch, []scheduler.Output, error) {
	var tip uint64
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		tip, err = s.chain.LatestBlockNumber(ctx)
		if err != nil {
			s.log.Error("scanner: fetching chain tip, retrying", "network", s.chain.Network().String(), "err", err)
		}
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scanner: fetching chain tip: %w", err)
	}
	safeTip := tip
	if s.chain.ConfirmationsRequired() > 0 {
		if tip < s.chain.ConfirmationsRequired() {
			safeTip = 0
		} else {
			safeTip = tip - s.chain.ConfirmationsRequired()
		}
	}

	cursor, err := s.Cursor()
	if err != nil {
		return nil, nil, err
	}
	if cursor >= safeTip {
		return nil, nil, nil
	}

	end := cursor + s.chain.WindowLength()
	if end > safeTip {
		end = safeTip
	}

	var instructions []scheduler.Instruction
	var plainOutputs []scheduler.Output
	for n := cursor + 1; n <= end; n++ {
		var outputs []ScannedOutput
		err := s.retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			outputs, err = s.chain.BlockOutputs(ctx, n)
			if err != nil {
				s.log.Error("scanner: fetching block outputs, retrying", "network", s.chain.Network().String(), "block", n, "err", err)
			}
			return err
		})
		if err != nil {
			return nil, nil, fmt.Errorf("scanner: fetching block %d outputs: %w", n, err)
		}
		for _, o := range outputs {
			if o.Output.Amount < s.chain.DustThreshold() {
				continue
			}
			if o.Instruction != nil {
				instructions = append(instructions, *o.Instruction)
			} else {
				plainOutputs = append(plainOutputs, o.Output)
			}
		}
	}

	if err := s.setCursor(end); err != nil {
		return nil, nil, err
	}

	if len(instructions) == 0 {
		return nil, plainOutputs, nil
	}

	s.batchID++
	if err := s.setBatchID(s.batchID); err != nil {
		return nil, nil, fmt.Errorf("scanner: persisting batch id: %w", err)
	}
	batch := &scheduler.Batch{
		Network:      s.chain.Network(),
		ID:           s.batchID,
		Instructions: instructions,
	}
	s.log.Info("scanner: built batch", "network", s.chain.Network().String(), "batch", batch.ID, "instructions", len(instructions))
	return batch, plainOutputs, nil
}

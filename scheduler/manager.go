package scheduler

import (
	"errors"
	"sync"
)

// KeyScheduler tracks one multisig key's confirmed-but-unspent outputs
// and the round-robin position AmortizeFee should resume from for that
// key's next Plan.
type KeyScheduler struct {
	Key           [32]byte
	available     []Output
	amortizeStart int
	retired       bool
}

var (
	ErrKeyNotRegistered = errors.New("scheduler: key is not registered with this manager")
	ErrKeyHasOutstanding = errors.New("scheduler: key still has outstanding Eventualities, cannot retire")
	ErrOutputNotFound     = errors.New("scheduler: output id not found among key's available outputs")
)

// MultisigManager is the top-level owner spec.md §4.E describes: the
// scan cursor, the confirmed-but-unacknowledged outputs per multisig
// key, a KeyScheduler per key, and the shared EventualityTracker that
// binds signed Plans back to chain-observed completions.
//
// Grounded on original_source/processor/src/multisigs/mod.rs's
// MultisigManager, which owns exactly this set of responsibilities
// across a key's full lifecycle (registration, scanning, signing,
// retirement).
type MultisigManager struct {
	mu       sync.Mutex
	cursor   uint64
	schedulers map[[32]byte]*KeyScheduler
	// order preserves key-rotation order (oldest first), so forwarding
	// and retirement always walk from the retiring key toward its
	// successor rather than needing a separate generation counter.
	order   [][32]byte
	tracker *EventualityTracker
}

// NewMultisigManager returns a manager with no registered keys.
func NewMultisigManager() *MultisigManager {
	return &MultisigManager{
		schedulers: make(map[[32]byte]*KeyScheduler),
		tracker:    NewEventualityTracker(),
	}
}

// RegisterKey begins tracking key, the new-key side of a rotation or a
// fresh genesis key (spec.md §4.E: "outgoing keys can't be removed until
// all Eventualities complete").
func (m *MultisigManager) RegisterKey(key [32]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedulers[key]; ok {
		return
	}
	m.schedulers[key] = &KeyScheduler{Key: key}
	m.order = append(m.order, key)
}

// CreditOutput records o as available to spend under key, once the
// scanner has confirmed it to the required depth.
func (m *MultisigManager) CreditOutput(key [32]byte, o Output) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ks, ok := m.schedulers[key]
	if !ok {
		return ErrKeyNotRegistered
	}
	ks.available = append(ks.available, o)
	return nil
}

// PendingOutputs returns key's currently spendable outputs.
func (m *MultisigManager) PendingOutputs(key [32]byte) ([]Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ks, ok := m.schedulers[key]
	if !ok {
		return nil, ErrKeyNotRegistered
	}
	out := make([]Output, len(ks.available))
	copy(out, ks.available)
	return out, nil
}

// AckOutputs removes consumed outputs from key's available set once a
// Plan spending them has been built, so a concurrent BuildPlan for the
// same key doesn't double-spend them.
func (m *MultisigManager) AckOutputs(key [32]byte, consumed []Output) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ks, ok := m.schedulers[key]
	if !ok {
		return ErrKeyNotRegistered
	}
	for _, c := range consumed {
		idx := -1
		for i, o := range ks.available {
			if o.ID == c.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrOutputNotFound
		}
		ks.available = append(ks.available[:idx], ks.available[idx+1:]...)
	}
	return nil
}

// Cursor returns the lowest block the scanner must still cover, folding
// in any requirement RegisterEventuality imposed.
func (m *MultisigManager) Cursor() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block, ok := m.tracker.ScannedThroughBlock(); ok && block < m.cursor {
		return block
	}
	return m.cursor
}

// SetCursor advances the manager's own notion of scan progress; it never
// lowers the cursor below what RegisterEventuality has required.
func (m *MultisigManager) SetCursor(block uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block > m.cursor {
		m.cursor = block
	}
}

// BuildPlan assembles a Plan for key from its currently available
// outputs, consuming them on success (via AckOutputs) so the same
// outputs can't be selected again before the Plan is signed.
func (m *MultisigManager) BuildPlan(
	key [32]byte,
	payments []Payment,
	minOutputs int,
	burnAddress []byte,
	neededFee NeededFeeFunc,
) (*Plan, []PostFeeBranch, error) {
	m.mu.Lock()
	ks, ok := m.schedulers[key]
	if !ok {
		m.mu.Unlock()
		return nil, nil, ErrKeyNotRegistered
	}
	available := make([]Output, len(ks.available))
	copy(available, ks.available)
	start := ks.amortizeStart
	m.mu.Unlock()

	plan, next, branches, err := BuildPlan(key, available, payments, minOutputs, burnAddress, start, neededFee)
	if err != nil {
		return nil, branches, err
	}

	m.mu.Lock()
	ks.amortizeStart = next
	m.mu.Unlock()
	if err := m.AckOutputs(key, plan.Inputs); err != nil {
		return nil, branches, err
	}
	return plan, branches, nil
}

// RegisterEventuality binds a signed Plan's Eventuality to the block it
// was produced at; the manager's Cursor will never advance past this
// block until the Eventuality completes (spec.md §4.E: "register lowers
// the cursor to the registration block").
func (m *MultisigManager) RegisterEventuality(block uint64, e Eventuality) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracker.RegisterAt(block, e)
}

// CompleteEventuality reports fingerprint as observed on-chain, clearing
// the matching Eventuality if found.
func (m *MultisigManager) CompleteEventuality(fingerprint [32]byte) (Eventuality, bool) {
	return m.tracker.Match(fingerprint)
}

// OutstandingForKey returns every tracked Eventuality still pending for
// key, used both to drive resubmission and to gate RetireKey.
func (m *MultisigManager) OutstandingForKey(key [32]byte) []Eventuality {
	all := m.tracker.Outstanding()
	out := make([]Eventuality, 0, len(all))
	for _, e := range all {
		if e.Key == key {
			out = append(out, e)
		}
	}
	return out
}

// RetireKey removes key from active scheduling once it has no
// outstanding Eventualities left (spec.md §4.E: "outgoing keys can't be
// removed until all Eventualities complete"). Any outputs still credited
// to key at retirement must already have been forwarded via
// ForwardOutput; RetireKey itself moves nothing.
func (m *MultisigManager) RetireKey(key [32]byte) error {
	if len(m.OutstandingForKey(key)) > 0 {
		return ErrKeyHasOutstanding
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ks, ok := m.schedulers[key]
	if !ok {
		return ErrKeyNotRegistered
	}
	ks.retired = true
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// ForwardOutput moves an output still arriving at a retiring key's
// address over to its successor, tagging it OutputForwarded so the
// scanner's InInstruction decoding knows not to treat it as a fresh
// external deposit (spec.md §4.E: outputs forwarded old->new via a
// Forwarded subaddress during the handover overlap window).
func (m *MultisigManager) ForwardOutput(oldKey, newKey [32]byte, o Output) error {
	m.mu.Lock()
	if _, ok := m.schedulers[oldKey]; !ok {
		m.mu.Unlock()
		return ErrKeyNotRegistered
	}
	if _, ok := m.schedulers[newKey]; !ok {
		m.mu.Unlock()
		return ErrKeyNotRegistered
	}
	m.mu.Unlock()

	o.Tag = OutputForwarded
	return m.CreditOutput(newKey, o)
}

package dex

import (
	"github.com/google/btree"
	"github.com/holiman/uint256"
)

// priceItem is one windowed spot-price sample, ordered in the btree by
// price then by insertion sequence (to keep equal-price samples
// distinct), which is what lets MedianWindow find the median in
// O(log n) instead of re-sorting the whole window on every insert.
type priceItem struct {
	price *uint256.Int
	seq   uint64
}

func (a priceItem) Less(than btree.Item) bool {
	b := than.(priceItem)
	if c := a.price.Cmp(b.price); c != 0 {
		return c < 0
	}
	return a.seq < b.seq
}

// MedianWindow maintains a rolling window of the last `size` spot-price
// samples and reports the median in O(log n), per spec.md §4.H's oracle
// feed requirement that validatorset (spec.md §4.G) reads a smoothed
// price rather than the latest single-block spot price, which a
// manipulated same-block swap could otherwise distort.
type MedianWindow struct {
	size   int
	tree   *btree.BTree
	order  []priceItem // insertion order, to evict the oldest when full
	seq    uint64
}

// NewMedianWindow returns a window holding at most `size` samples.
func NewMedianWindow(size int) *MedianWindow {
	if size < 1 {
		size = 1
	}
	return &MedianWindow{size: size, tree: btree.New(32)}
}

// Add records a new spot-price sample, evicting the oldest sample if the
// window is already full.
func (m *MedianWindow) Add(price *uint256.Int) {
	item := priceItem{price: new(uint256.Int).Set(price), seq: m.seq}
	m.seq++
	m.tree.ReplaceOrInsert(item)
	m.order = append(m.order, item)

	if len(m.order) > m.size {
		oldest := m.order[0]
		m.order = m.order[1:]
		m.tree.Delete(oldest)
	}
}

// Median returns the current window's median sample, or nil if the
// window is empty. For an even-sized window it returns the lower of the
// two central samples (deterministic and cheap; spec.md §4.H doesn't
// require interpolation between them).
func (m *MedianWindow) Median() *uint256.Int {
	n := m.tree.Len()
	if n == 0 {
		return nil
	}
	target := (n - 1) / 2
	var result *uint256.Int
	i := 0
	m.tree.Ascend(func(item btree.Item) bool {
		if i == target {
			result = item.(priceItem).price
			return false
		}
		i++
		return true
	})
	return result
}

// Len reports the number of samples currently in the window.
func (m *MedianWindow) Len() int { return len(m.order) }

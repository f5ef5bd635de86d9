package database

import (
	"encoding/binary"
)

// Key builds a domain-separated tuple key: component-label, then each
// field length-prefixed so no field can bleed into its neighbour. This
// generalizes the teacher's EVM-slot derivation in staking/state.go
// (`stakingSlot(addr, field)` = addr bytes ‖ field bytes, hashed) to a
// plain KV-store key: spec.md §6 asks for keys like
// ("tributary", genesis, topic, label, attempt) and promises "no
// component may read another's keyspace", so the leading component
// label is mandatory and fields are framed rather than hashed away.
func Key(component string, parts ...[]byte) []byte {
	out := make([]byte, 0, len(component)+1+len(parts)*5)
	out = append(out, byte(len(component)))
	out = append(out, component...)
	for _, p := range parts {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		out = append(out, lenBuf[:]...)
		out = append(out, p...)
	}
	return out
}

// Uint64Bytes big-endian encodes v, suitable as a Key part. Big-endian is
// used throughout (rather than the host's native order) so that lexical
// KV-store iteration order matches numeric order, which SortedAllocations
// below depends on.
func Uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func Uint32Bytes(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

// InvertedUint64Bytes encodes v such that lexical byte order is the
// *reverse* of numeric order. validatorset's SortedAllocations index
// needs validators ordered highest-allocation-first under plain KV
// iteration (spec.md §4.G); XOR-ing every byte with 0xFF flips the
// ordering cheaply.
func InvertedUint64Bytes(v uint64) []byte {
	b := Uint64Bytes(v)
	for i := range b {
		b[i] ^= 0xFF
	}
	return b
}

// UninvertUint64Bytes reverses InvertedUint64Bytes, recovering the
// original numeric value from an inverted 8-byte encoding.
func UninvertUint64Bytes(b []byte) uint64 {
	var inv [8]byte
	copy(inv[:], b)
	for i := range inv {
		inv[i] ^= 0xFF
	}
	return binary.BigEndian.Uint64(inv[:])
}

// Package messages defines the wire types exchanged between a processor
// (one per validator-set-network pair) and the coordinator, per spec.md
// §6, plus a durable at-least-once queue (goleveldb-backed) those
// messages travel through so a processor or coordinator restart never
// silently drops an in-flight message.
//
// Grounded on the teacher's p2p message-envelope pattern (a numeric kind
// tag plus an opaque payload, dispatched by a single switch in the
// reactor) and on gorilla/websocket as the transport, the same library
// other pack repos (sersh-eth-proxy) use for a duplex JSON-RPC-style
// channel.
package messages

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// Kind tags every message so the receiver's single dispatch switch can
// route it without type-asserting the payload first.
type Kind uint8

const (
	KindKeyGenCommitments Kind = iota
	KindKeyGenShares
	KindKeyGenGeneratedKeyPair
	KindKeyGenBlame
	KindKeyGenParticipation

	KindSignPreprocess
	KindSignShare
	KindSignCompleted

	KindCoordinatorBatchPreprocess
	KindCoordinatorBatchShare
	KindCoordinatorSubstrateBlockAck

	KindSubstrateBatch
	KindSubstrateSignedBatch
)

// Envelope wraps every message with a correlation id (so responses can
// be matched to requests across the async boundary) and the JSON-encoded
// payload.
type Envelope struct {
	ID      uuid.UUID       `json:"id"`
	Kind    Kind            `json:"kind"`
	Session uint32          `json:"session"`
	Network uint8           `json:"network"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and assigns it a fresh correlation id.
func NewEnvelope(kind Kind, session uint32, network uint8, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: uuid.New(), Kind: kind, Session: session, Network: network, Payload: raw}, nil
}

// ProcessorMessage payload shapes, per spec.md §6.
type (
	KeyGenCommitments struct {
		Attempt            uint32 `json:"attempt"`
		CoordinatorCommitments []byte `json:"coordinator_commitments"`
		NetworkCommitments     []byte `json:"network_commitments"`
	}

	KeyGenShares struct {
		Attempt          uint32          `json:"attempt"`
		CoordinatorShares map[uint16][]byte `json:"coordinator_shares"`
		NetworkShares     map[uint16][]byte `json:"network_shares"`
	}

	KeyGenGeneratedKeyPair struct {
		Attempt        uint32 `json:"attempt"`
		CoordinatorKey []byte `json:"coordinator_key"`
		NetworkKey     []byte `json:"network_key"`
	}

	KeyGenBlame struct {
		Attempt        uint32 `json:"attempt"`
		FaultyIndex    int    `json:"faulty_index"`
		Curve          uint8  `json:"curve"`
	}

	KeyGenParticipation struct {
		Attempt       uint32 `json:"attempt"`
		Index         int    `json:"index"`
		Coordinator   []byte `json:"coordinator"`
		Network       []byte `json:"network"`
	}

	SignPreprocess struct {
		ID          [32]byte `json:"id"`
		Attempt     uint32   `json:"attempt"`
		Commitments []byte   `json:"commitments"`
	}

	SignShare struct {
		ID      [32]byte `json:"id"`
		Attempt uint32   `json:"attempt"`
		Share   []byte   `json:"share"`
	}

	SignCompleted struct {
		ID        [32]byte `json:"id"`
		Attempt   uint32   `json:"attempt"`
		Signature []byte   `json:"signature"`
	}
)

// CoordinatorMessage payload shapes, per spec.md §6.
type (
	CoordinatorBatchPreprocess struct {
		BatchID     uint32 `json:"batch_id"`
		Commitments []byte `json:"commitments"`
	}

	CoordinatorBatchShare struct {
		BatchID uint32 `json:"batch_id"`
		Share   []byte `json:"share"`
	}

	CoordinatorSubstrateBlockAck struct {
		BlockNumber uint64 `json:"block_number"`
	}
)

// SubstrateMessage payload shapes, per spec.md §6.
type (
	SubstrateBatch struct {
		BatchID uint32 `json:"batch_id"`
		Data    []byte `json:"data"`
	}

	SubstrateSignedBatch struct {
		BatchID   uint32 `json:"batch_id"`
		Data      []byte `json:"data"`
		Signature []byte `json:"signature"`
	}
)

var ErrUnknownKind = errors.New("messages: unknown message kind")

package messages

import (
	"encoding/json"
	"fmt"

	"github.com/tos-network/custody/internal/database"
)

// Queue is a durable at-least-once outbound message queue: Enqueue
// persists before the caller attempts delivery, and messages are only
// removed once Ack confirms the peer processed them. A crash between
// send and ack simply means the message is redelivered on restart,
// which every handler must therefore treat idempotently (HandledMessageDb
// below is how receivers make that idempotency cheap to check).
type Queue struct {
	db   database.KeyValueStore
	name string
}

// NewQueue opens a Queue namespaced by `name` (e.g. "processor-out",
// "coordinator-out") over db.
func NewQueue(db database.KeyValueStore, name string) *Queue {
	return &Queue{db: db, name: name}
}

func (q *Queue) key(id [16]byte) []byte {
	return database.Key("msgqueue", []byte(q.name), id[:])
}

// Enqueue durably stores env before it is ever handed to a transport.
func (q *Queue) Enqueue(env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("messages: encoding envelope: %w", err)
	}
	return q.db.Put(q.key(env.ID), raw)
}

// Ack removes a successfully delivered (and peer-acknowledged) message.
func (q *Queue) Ack(id [16]byte) error {
	return q.db.Delete(q.key(id))
}

// Pending returns every envelope not yet acked, in no particular order,
// for a redelivery sweep (e.g. on process start, or on a reconnect after
// a transport drop).
func (q *Queue) Pending() ([]Envelope, error) {
	prefix := database.Key("msgqueue", []byte(q.name))
	iter := q.db.NewIterator(prefix)
	defer iter.Release()

	var out []Envelope
	for iter.Next() {
		var env Envelope
		if err := json.Unmarshal(iter.Value(), &env); err != nil {
			continue
		}
		out = append(out, env)
	}
	return out, iter.Error()
}

// HandledMessageDb tracks which inbound envelope ids have already been
// processed, so a redelivered message (the queue's at-least-once
// guarantee means every message may arrive more than once) is recognized
// and skipped rather than double-applied.
type HandledMessageDb struct {
	db database.KeyValueStore
}

// NewHandledMessageDb wraps db.
func NewHandledMessageDb(db database.KeyValueStore) *HandledMessageDb {
	return &HandledMessageDb{db: db}
}

func (h *HandledMessageDb) key(id [16]byte) []byte {
	return database.Key("msghandled", id[:])
}

// AlreadyHandled reports whether id has previously been marked Handled.
func (h *HandledMessageDb) AlreadyHandled(id [16]byte) (bool, error) {
	return h.db.Has(h.key(id))
}

// MarkHandled records that id has now been fully applied.
func (h *HandledMessageDb) MarkHandled(id [16]byte) error {
	return h.db.Put(h.key(id), []byte{1})
}

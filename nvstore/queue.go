package nvstore

import "eeparam-go/x/shmring"

// DefaultQueueCapacity is the number of writes that may wait for the writer.
const DefaultQueueCapacity = 10

// record is one pending slot write. It owns a copy of the value so the
// caller may reuse its buffer as soon as RequestWrite returns.
type record struct {
	index  int
	seq    uint32
	target uint16 // status byte of the slot being written
	status byte
	size   uint8
	data   [MaxElementSize]byte
}

// writeQueue is filled by the caller context and drained only by the writer.
type writeQueue struct {
	ring *shmring.Ring[record]
}

func newWriteQueue(capacity int) *writeQueue {
	return &writeQueue{ring: shmring.New[record](capacity)}
}

// enqueue returns false, dropping rec, when the queue is full.
func (q *writeQueue) enqueue(rec record) bool { return q.ring.TryPut(rec) }

func (q *writeQueue) dequeue() (record, bool) { return q.ring.TryGet() }

func (q *writeQueue) len() int { return q.ring.Len() }
func (q *writeQueue) cap() int { return q.ring.Cap() }

package csvreader

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// batchQueue holds flushed batches in production order until the consumer
// pulls them. It is owned by a single reader and not safe for concurrent use.
type batchQueue struct {
	items []arrow.Record
	head  int
}

func (q *batchQueue) Push(rec arrow.Record) {
	q.items = append(q.items, rec)
}

// Pop returns the oldest batch, or nil when the queue is empty.
func (q *batchQueue) Pop() arrow.Record {
	if q.head == len(q.items) {
		return nil
	}
	rec := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return rec
}

func (q *batchQueue) Len() int {
	return len(q.items) - q.head
}

// Release drops every queued batch.
func (q *batchQueue) Release() {
	for rec := q.Pop(); rec != nil; rec = q.Pop() {
		rec.Release()
	}
}

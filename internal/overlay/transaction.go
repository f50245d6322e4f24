package overlay

import (
	"sync"

	"github.com/ntess/dnetgo/pkg/wire"
)

// Callback is a Transaction's completion hook. Destroy (with cancel set) and
// DestroyForPeer invoke it once with a nil peer/cmd/attr/body to signal
// cancellation; no code in this module hands reply frames to it (the
// client entry points read their replies directly). Grounded on iomeshage's
// TID-keyed response channel (iomeshage/handler.go's handleResponse), but
// using a callback instead of a channel since reads may deliver several
// chunks that the caller wants to act on incrementally rather than drain
// from a channel.
type Callback func(peer *Peer, cmd *wire.Cmd, attr *wire.Attr, body []byte, priv interface{}) error

// Transaction correlates an outbound request with its eventual reply (or
// replies, for a chunked READ).
type Transaction struct {
	Trans    uint64
	Peer     *Peer
	Callback Callback
	Priv     interface{}

	mu    sync.Mutex
	reply []byte // reply-assembly buffer
}

// AppendReply appends to the transaction's reply-assembly buffer and
// returns the buffer's current contents. Used by callers that coalesce
// multi-chunk replies instead of acting on each chunk independently.
func (t *Transaction) AppendReply(p []byte) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reply = append(t.reply, p...)
	return t.reply
}

// Transactions is the node's transaction table: it issues monotonically
// increasing transaction numbers and correlates replies with the request
// that caused them.
//
// Grounded on iomeshage's tidLock + TIDs map + newTID/unregisterTID pattern
// (iomeshage/handler.go), generalized from iomeshage's random 63-bit IDs to
// the spec's strictly monotonic counter (numbers are never reused within the
// lifetime of the node, a property a counter gives for free and a random ID
// only gives probabilistically).
type Transactions struct {
	mu    sync.Mutex
	next  uint64
	table map[uint64]*Transaction
}

// NewTransactions returns an empty transaction table. Numbers start at 1 so
// that 0 can be reserved as "no transaction" by callers that need such a
// sentinel.
func NewTransactions() *Transactions {
	return &Transactions{
		next:  1,
		table: make(map[uint64]*Transaction),
	}
}

// Insert assigns t.Trans and registers it in the table.
func (tt *Transactions) Insert(t *Transaction) uint64 {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	t.Trans = tt.next
	tt.next++
	tt.table[t.Trans] = t

	return t.Trans
}

// Lookup returns the transaction registered under n, if any.
func (tt *Transactions) Lookup(n uint64) (*Transaction, bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	t, ok := tt.table[n]
	return t, ok
}

// Destroy removes the transaction registered under n. If cancel is true and
// a callback is set, it is invoked once with a nil cmd/attr/body to signal
// cancellation before the record is discarded -- used when a peer's
// teardown drops all transactions bound to it.
func (tt *Transactions) Destroy(n uint64, cancel bool) {
	tt.mu.Lock()
	t, ok := tt.table[n]
	if ok {
		delete(tt.table, n)
	}
	tt.mu.Unlock()

	if ok && cancel && t.Callback != nil {
		t.Callback(nil, nil, nil, nil, t.Priv)
	}
}

// DestroyForPeer destroys every transaction bound to peer, invoking each
// callback with the cancellation signature. Used on peer teardown.
func (tt *Transactions) DestroyForPeer(peer *Peer) {
	tt.mu.Lock()
	var victims []*Transaction
	for n, t := range tt.table {
		if t.Peer == peer {
			victims = append(victims, t)
			delete(tt.table, n)
		}
	}
	tt.mu.Unlock()

	for _, t := range victims {
		if t.Callback != nil {
			t.Callback(nil, nil, nil, nil, t.Priv)
		}
	}
}

// Len reports how many transactions are currently in flight.
func (tt *Transactions) Len() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return len(tt.table)
}

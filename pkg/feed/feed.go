// Package feed streams settled sale receipts to gRPC subscribers.
//
// The feed sits behind the receipt log's commit path: every chained receipt
// is fanned out to all live subscriptions. Slow subscribers drop their
// oldest buffered receipt rather than stalling settlement.
package feed

import (
	"sync"
	"time"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/receipts"
)

// DefaultSubscriberBuffer is the per-subscription receipt buffer.
const DefaultSubscriberBuffer = 256

// Feed fans receipts out to subscribers.
type Feed struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
	closed bool
}

type subscription struct {
	ch chan *receipts.Receipt

	// mint filters the subscription; nil means all sales.
	mint *types.Pubkey
}

// New creates an empty feed.
func New() *Feed {
	return &Feed{subs: make(map[uint64]*subscription)}
}

// Publish delivers a receipt to every matching subscriber.
// Never blocks: a full subscriber buffer drops its oldest entry.
func (f *Feed) Publish(r *receipts.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	for _, sub := range f.subs {
		if sub.mint != nil && *sub.mint != r.Mint {
			continue
		}
		select {
		case sub.ch <- r:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- r
		}
	}
}

// Subscribe registers a receipt channel, optionally filtered by mint.
// The returned cancel function closes the channel.
func (f *Feed) Subscribe(mint *types.Pubkey) (<-chan *receipts.Receipt, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	sub := &subscription{
		ch:   make(chan *receipts.Receipt, DefaultSubscriberBuffer),
		mint: mint,
	}
	if !f.closed {
		f.subs[id] = sub
	} else {
		close(sub.ch)
	}

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if s, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close drops all subscriptions and rejects future publishes.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, sub := range f.subs {
		delete(f.subs, id)
		close(sub.ch)
	}
}

func updateFromReceipt(r *receipts.Receipt) *receiptUpdate {
	return &receiptUpdate{
		Seq:       r.Seq,
		Kind:      r.Kind,
		Mint:      r.Mint.String(),
		Actor:     r.Actor.String(),
		Tokens:    r.Tokens,
		BaseUnits: r.BaseUnits,
		Lamports:  r.Lamports,
		UnixNanos: r.Time.UnixNano(),
		PrevHash:  r.PrevHash[:],
		Hash:      r.Hash[:],
	}
}

func receiptFromUpdate(u *receiptUpdate) (*receipts.Receipt, error) {
	mint, err := types.PubkeyFromBase58(u.Mint)
	if err != nil {
		return nil, err
	}
	actor, err := types.PubkeyFromBase58(u.Actor)
	if err != nil {
		return nil, err
	}
	r := &receipts.Receipt{
		Seq:       u.Seq,
		Kind:      u.Kind,
		Mint:      mint,
		Actor:     actor,
		Tokens:    u.Tokens,
		BaseUnits: u.BaseUnits,
		Lamports:  u.Lamports,
		Time:      time.Unix(0, u.UnixNanos).UTC(),
	}
	copy(r.PrevHash[:], u.PrevHash)
	copy(r.Hash[:], u.Hash)
	return r, nil
}

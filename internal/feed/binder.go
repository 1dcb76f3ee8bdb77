package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pders01/synfeed/internal/model"
)

// Token identifies one binding of a row slot. A slot is rebound by
// acquiring a new token, which makes every older token for it stale.
type Token struct {
	Slot int
	Gen  uint64
}

// Binder presents posts for row slots in the background. Rows are recycled,
// so a result is delivered only while its token is still the slot's current
// one. Receivers that apply results later should check Live again.
type Binder struct {
	presenter *Presenter

	mu    sync.Mutex
	gens  []uint64
	wg    sync.WaitGroup
	drops atomic.Int64
}

func NewBinder(p *Presenter) *Binder {
	return &Binder{presenter: p}
}

// Acquire starts a new binding for slot and invalidates the previous one.
func (b *Binder) Acquire(slot int) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.gens) <= slot {
		b.gens = append(b.gens, 0)
	}
	b.gens[slot]++
	return Token{Slot: slot, Gen: b.gens[slot]}
}

// Live reports whether tok is still the current binding of its slot.
func (b *Binder) Live(tok Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return tok.Slot >= 0 && tok.Slot < len(b.gens) && b.gens[tok.Slot] == tok.Gen
}

// Bind presents post for slot on a new goroutine and hands the item to
// deliver if the slot has not been rebound in the meantime. It returns
// immediately.
func (b *Binder) Bind(ctx context.Context, slot int, post model.Post, deliver func(Token, PostItem)) Token {
	tok := b.Acquire(slot)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		it := b.presenter.Present(ctx, post)
		if !b.Live(tok) {
			b.drops.Add(1)
			return
		}
		deliver(tok, it)
	}()
	return tok
}

// Dropped counts results discarded because their slot was rebound.
func (b *Binder) Dropped() int64 {
	return b.drops.Load()
}

// Wait blocks until every started bind has finished.
func (b *Binder) Wait() {
	b.wg.Wait()
}

package domain

import (
	"math/rand"
	"sync/atomic"
)

type poolSnapshot struct {
	byID  map[string]Peer
	order []string
}

// PeerPool — множество пригодных для записи пиров одной учётки. Снимок
// заменяется целиком атомарным свопом указателя, поэтому читатели никогда
// не видят частично обновлённый пул.
type PeerPool struct {
	snap atomic.Pointer[poolSnapshot]
}

// NewPeerPool создаёт пустой пул.
func NewPeerPool() *PeerPool {
	p := &PeerPool{}
	p.snap.Store(&poolSnapshot{byID: map[string]Peer{}})
	return p
}

// Replace целиком заменяет содержимое пула.
func (p *PeerPool) Replace(peers []Peer) {
	next := &poolSnapshot{
		byID:  make(map[string]Peer, len(peers)),
		order: make([]string, 0, len(peers)),
	}
	for _, peer := range peers {
		if _, ok := next.byID[peer.ID]; ok {
			continue
		}
		next.byID[peer.ID] = peer
		next.order = append(next.order, peer.ID)
	}
	p.snap.Store(next)
}

// Remove исключает пир из пула, остальные члены сохраняются.
func (p *PeerPool) Remove(id string) {
	for {
		cur := p.snap.Load()
		if _, ok := cur.byID[id]; !ok {
			return
		}
		next := &poolSnapshot{
			byID:  make(map[string]Peer, len(cur.byID)-1),
			order: make([]string, 0, len(cur.order)-1),
		}
		for _, pid := range cur.order {
			if pid == id {
				continue
			}
			next.byID[pid] = cur.byID[pid]
			next.order = append(next.order, pid)
		}
		if p.snap.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Get возвращает пир по идентификатору.
func (p *PeerPool) Get(id string) (Peer, bool) {
	peer, ok := p.snap.Load().byID[id]
	return peer, ok
}

// Random выбирает пир равновероятно.
func (p *PeerPool) Random(rng *rand.Rand) (Peer, bool) {
	cur := p.snap.Load()
	if len(cur.order) == 0 {
		return Peer{}, false
	}
	id := cur.order[rng.Intn(len(cur.order))]
	return cur.byID[id], true
}

// IDs возвращает идентификаторы всех пиров пула.
func (p *PeerPool) IDs() []string {
	cur := p.snap.Load()
	ids := make([]string, len(cur.order))
	copy(ids, cur.order)
	return ids
}

// Len возвращает размер пула.
func (p *PeerPool) Len() int {
	return len(p.snap.Load().order)
}

package memtier

import (
	"container/list"

	"github.com/thebtf/semcache/pkg/models"
)

// arcEntry is the payload stored in every list element. ghost is true for
// entries tracked in B1/B2, which remember an evicted id's recency class
// without holding its value.
type arcEntry struct {
	id    string
	entry models.CacheEntry
	ghost bool
}

// ARC implements Adaptive Replacement Cache (Megiddo & Modha): two LRU lists
// for resident entries (T1 recency, T2 frequency) and two ghost lists (B1,
// B2) that remember recently evicted ids so the cache can adapt its split
// between recency and frequency based on the workload's actual access
// pattern, without a tunable parameter.
type ARC struct {
	capacity int
	p        int // target size of T1, adapted on every ghost hit

	t1, t2, b1, b2 *list.List
	index          map[string]*list.Element // id -> element, across all four lists
}

// NewARC builds an ARC evictor holding up to capacity resident entries.
func NewARC(capacity int) *ARC {
	if capacity <= 0 {
		capacity = 1
	}
	return &ARC{
		capacity: capacity,
		t1:       list.New(),
		t2:       list.New(),
		b1:       list.New(),
		b2:       list.New(),
		index:    make(map[string]*list.Element, capacity*2),
	}
}

// Get returns the entry for id if resident, promoting it from T1 to T2 (it
// has now been accessed twice, so belongs to the frequency list) and
// nudging the adaptive target p: a T1 hit favours recency less (p shrinks
// toward T2), a T2 hit favours it more (p grows toward T1).
func (a *ARC) Get(id string) (models.CacheEntry, bool) {
	el, ok := a.index[id]
	if !ok {
		return models.CacheEntry{}, false
	}
	ent := el.Value.(*arcEntry)
	if ent.ghost {
		return models.CacheEntry{}, false
	}

	if listOf(el, a.t1) {
		a.t1.Remove(el)
		newEl := a.t2.PushFront(ent)
		a.index[id] = newEl
		a.p--
		if a.p < 0 {
			a.p = 0
		}
	} else {
		a.t2.MoveToFront(el)
		a.p++
		if a.p > a.capacity {
			a.p = a.capacity
		}
	}
	return ent.entry, true
}

// listOf reports whether el currently belongs to l. container/list doesn't
// expose this directly, so callers that already know which list an id
// *should* be in skip it; Get uses it because it genuinely doesn't know.
func listOf(el *list.Element, l *list.List) bool {
	for e := l.Front(); e != nil; e = e.Next() {
		if e == el {
			return true
		}
	}
	return false
}

// Put inserts or updates id. Four cases, per the original ARC paper:
// a fresh id, a ghost hit in B1, a ghost hit in B2, or a resident update.
func (a *ARC) Put(id string, entry models.CacheEntry) {
	if el, ok := a.index[id]; ok {
		ent := el.Value.(*arcEntry)
		if !ent.ghost {
			ent.entry = entry
			if listOf(el, a.t1) {
				// A direct Put on a T1-resident id counts as a second touch.
				a.t1.Remove(el)
				a.index[id] = a.t2.PushFront(ent)
			} else {
				a.t2.MoveToFront(el)
			}
			return
		}
		if listOf(el, a.b1) {
			a.adaptOnB1Hit()
			a.b1.Remove(el)
			a.makeRoom()
			ent.ghost = false
			ent.entry = entry
			a.index[id] = a.t2.PushFront(ent)
			a.trimGhostLists()
			return
		}
		// ghost hit in B2
		a.adaptOnB2Hit()
		a.b2.Remove(el)
		a.makeRoom()
		ent.ghost = false
		ent.entry = entry
		a.index[id] = a.t2.PushFront(ent)
		a.trimGhostLists()
		return
	}

	// Brand new id.
	if a.t1.Len()+a.t2.Len() >= a.capacity {
		a.makeRoom()
	}
	ent := &arcEntry{id: id, entry: entry}
	a.index[id] = a.t1.PushFront(ent)
	a.trimGhostLists()
}

func (a *ARC) adaptOnB1Hit() {
	delta := 1
	if a.b1.Len() > 0 && a.b2.Len() > a.b1.Len() {
		delta = a.b2.Len() / a.b1.Len()
	}
	a.p += delta
	if a.p > a.capacity {
		a.p = a.capacity
	}
}

func (a *ARC) adaptOnB2Hit() {
	delta := 1
	if a.b2.Len() > 0 && a.b1.Len() > a.b2.Len() {
		delta = a.b1.Len() / a.b2.Len()
	}
	a.p -= delta
	if a.p < 0 {
		a.p = 0
	}
}

// makeRoom evicts one entry from T1 or T2 into its matching ghost list,
// choosing per the adapted target size p. It does not trim the ghost lists;
// Put calls trimGhostLists afterwards to keep the whole structure bounded
// at roughly 2*capacity.
func (a *ARC) makeRoom() {
	if a.t1.Len() >= 1 && (a.t1.Len() > a.p || (a.t1.Len() == a.p && a.p > 0)) {
		a.evictFrom(a.t1, a.b1)
	} else if a.t2.Len() > 0 {
		a.evictFrom(a.t2, a.b2)
	} else if a.t1.Len() > 0 {
		a.evictFrom(a.t1, a.b1)
	}
}

func (a *ARC) evictFrom(src, ghostDst *list.List) {
	back := src.Back()
	if back == nil {
		return
	}
	ent := back.Value.(*arcEntry)
	src.Remove(back)
	ent.ghost = true
	ent.entry = models.CacheEntry{}
	a.index[ent.id] = ghostDst.PushFront(ent)
}

// trimGhostLists enforces the per-list ghost bounds |B1| <= M-p and
// |B2| <= p, dropping the least-recently-evicted ghost entirely once a
// bound is exceeded.
func (a *ARC) trimGhostLists() {
	for a.b1.Len() > a.capacity-a.p {
		back := a.b1.Back()
		if back == nil {
			break
		}
		a.b1.Remove(back)
		delete(a.index, back.Value.(*arcEntry).id)
	}
	for a.b2.Len() > a.p {
		back := a.b2.Back()
		if back == nil {
			break
		}
		a.b2.Remove(back)
		delete(a.index, back.Value.(*arcEntry).id)
	}
}

// Remove evicts id unconditionally, from whichever list holds it.
func (a *ARC) Remove(id string) {
	el, ok := a.index[id]
	if !ok {
		return
	}
	delete(a.index, id)
	for _, l := range []*list.List{a.t1, a.t2, a.b1, a.b2} {
		for e := l.Front(); e != nil; e = e.Next() {
			if e == el {
				l.Remove(e)
				return
			}
		}
	}
}

// Len returns the number of resident (non-ghost) entries.
func (a *ARC) Len() int { return a.t1.Len() + a.t2.Len() }

var _ Evictor = (*ARC)(nil)

package memtier

import (
	"container/list"

	"github.com/thebtf/semcache/pkg/models"
)

type segment int

const (
	segWindow segment = iota
	segProbation
	segProtected
)

type wtlfuEntry struct {
	id      string
	entry   models.CacheEntry
	segment segment
}

// WTinyLFU implements Windowed TinyLFU: a small admission window (plain
// LRU) feeds a larger main cache split into probationary and protected
// segmented-LRU segments. When the window is full, a new key only reaches
// the main cache by winning a frequency-sketch race against the window's
// own LRU victim; losing the race drops the new key without ever admitting
// it, so long-resident data is only displaced by genuinely more popular
// newcomers.
type WTinyLFU struct {
	windowCap     int
	probationCap  int
	protectedCap  int
	window        *list.List
	probationList *list.List
	protected     *list.List
	index         map[string]*list.Element
	sketch        *countMinSketch
}

// NewWTinyLFU builds a W-TinyLFU evictor with capacity total slots, of
// which windowPct (e.g. 0.01) are reserved for the admission window and the
// rest split 20/80 between probationary and protected main-cache segments,
// per the policy's published sizing recommendation.
func NewWTinyLFU(capacity int, windowPct float64) *WTinyLFU {
	if capacity <= 0 {
		capacity = 1
	}
	if windowPct <= 0 || windowPct >= 1 {
		windowPct = 0.01
	}
	windowCap := int(float64(capacity) * windowPct)
	if windowCap < 1 {
		windowCap = 1
	}
	mainCap := capacity - windowCap
	if mainCap < 1 {
		mainCap = 1
	}
	protectedCap := int(float64(mainCap) * 0.8)
	probationCap := mainCap - protectedCap
	if probationCap < 1 {
		probationCap = 1
	}

	return &WTinyLFU{
		windowCap:     windowCap,
		probationCap:  probationCap,
		protectedCap:  protectedCap,
		window:        list.New(),
		probationList: list.New(),
		protected:     list.New(),
		index:         make(map[string]*list.Element, capacity),
		sketch:        newCountMinSketch(capacity*10, capacity*10),
	}
}

func (w *WTinyLFU) listFor(seg segment) *list.List {
	switch seg {
	case segWindow:
		return w.window
	case segProtected:
		return w.protected
	default:
		return w.probationList
	}
}

// Get returns the entry for id, recording the access in the frequency
// sketch and promoting a probationary hit to protected.
func (w *WTinyLFU) Get(id string) (models.CacheEntry, bool) {
	el, ok := w.index[id]
	if !ok {
		return models.CacheEntry{}, false
	}
	w.sketch.Add(id)
	ent := el.Value.(*wtlfuEntry)

	switch ent.segment {
	case segWindow:
		w.window.MoveToFront(el)
	case segProbation:
		w.probationList.Remove(el)
		ent.segment = segProtected
		w.index[id] = w.protected.PushFront(ent)
		w.demoteProtectedOverflow()
	case segProtected:
		w.protected.MoveToFront(el)
	}
	return ent.entry, true
}

// Put inserts or updates id. A brand new id goes straight to the window
// while the window has room. Once the window is full, inserting id evicts
// the window's LRU as a victim and runs the admission race between the
// two: id only reaches the main cache (Probation) if the sketch estimates
// it at least as frequent as the victim; otherwise id is dropped without
// ever being admitted, and only the victim moves on.
func (w *WTinyLFU) Put(id string, entry models.CacheEntry) {
	w.sketch.Add(id)

	if el, ok := w.index[id]; ok {
		ent := el.Value.(*wtlfuEntry)
		ent.entry = entry
		w.listFor(ent.segment).MoveToFront(el)
		return
	}

	if w.window.Len() < w.windowCap {
		ent := &wtlfuEntry{id: id, entry: entry, segment: segWindow}
		w.index[id] = w.window.PushFront(ent)
		return
	}

	back := w.window.Back()
	if back == nil {
		return
	}
	victim := back.Value.(*wtlfuEntry)
	w.window.Remove(back)
	delete(w.index, victim.id)

	if w.sketch.Estimate(id) >= w.sketch.Estimate(victim.id) {
		w.admitToMain(victim.id, victim.entry)
		w.admitToMain(id, entry)
	} else {
		w.admitToMain(victim.id, victim.entry)
		// id loses the admission race: dropped, never reaches Probation.
	}
}

// admitToMain places id at the MRU of Probation, evicting Probation's own
// LRU outright if it is already full. There is no second frequency race
// here: the only admission contest is the one Put already ran at the
// window boundary.
func (w *WTinyLFU) admitToMain(id string, entry models.CacheEntry) {
	if w.probationCap <= 0 {
		return
	}
	if w.probationList.Len() >= w.probationCap {
		back := w.probationList.Back()
		if back != nil {
			w.probationList.Remove(back)
			delete(w.index, back.Value.(*wtlfuEntry).id)
		}
	}
	ent := &wtlfuEntry{id: id, entry: entry, segment: segProbation}
	w.index[id] = w.probationList.PushFront(ent)
}

func (w *WTinyLFU) demoteProtectedOverflow() {
	for w.protected.Len() > w.protectedCap {
		back := w.protected.Back()
		if back == nil {
			return
		}
		ent := back.Value.(*wtlfuEntry)
		w.protected.Remove(back)
		ent.segment = segProbation
		w.index[ent.id] = w.probationList.PushFront(ent)
	}
}

// Remove evicts id unconditionally from whichever segment holds it.
func (w *WTinyLFU) Remove(id string) {
	el, ok := w.index[id]
	if !ok {
		return
	}
	ent := el.Value.(*wtlfuEntry)
	w.listFor(ent.segment).Remove(el)
	delete(w.index, id)
}

// Len returns the total number of resident entries across all segments.
func (w *WTinyLFU) Len() int {
	return w.window.Len() + w.probationList.Len() + w.protected.Len()
}

var _ Evictor = (*WTinyLFU)(nil)

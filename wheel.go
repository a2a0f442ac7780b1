// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import "fmt"

// wheelEnt is one scheduled packet transmission.
type wheelEnt struct {
	sslot  *SSlot
	pktNum int
}

// timingWheel schedules packet transmissions at target timestamps. Slots
// are fixed-width time buckets indexed by cycle count; reap moves every
// entry in a due bucket onto the ready queue. Entries in the wheel have
// already consumed session credits.
type timingWheel struct {
	wslotWidthTsc uint64
	numWslots     int
	buckets       [][]wheelEnt
	horizonTsc    uint64
	curWslot      int
	curTsc        uint64 // bucket boundary the wheel has been reaped to
	readyQueue    []wheelEnt
	numEntries    int
}

const (
	// wheelSlotWidthUs is the bucket width in microseconds.
	wheelSlotWidthUs = 0.5
	// wheelNumWslots is the number of buckets; the product with the slot
	// width bounds the scheduling horizon.
	wheelNumWslots = 1 << 12
)

func newTimingWheel(freqGHz float64) *timingWheel {
	w := &timingWheel{
		wslotWidthTsc: usToCycles(wheelSlotWidthUs, freqGHz),
		numWslots:     wheelNumWslots,
		buckets:       make([][]wheelEnt, wheelNumWslots),
		curTsc:        rdtsc(),
	}
	w.horizonTsc = w.wslotWidthTsc * uint64(w.numWslots-1)
	return w
}

// insert schedules an entry for transmission at desiredTxTsc. A target in
// the past lands in the current bucket; a target beyond the horizon is
// clamped to it.
func (w *timingWheel) insert(ent wheelEnt, refTsc, desiredTxTsc uint64) {
	delay := uint64(0)
	if desiredTxTsc > refTsc {
		delay = desiredTxTsc - refTsc
	}
	if delay > w.horizonTsc {
		delay = w.horizonTsc
	}
	// Distance in buckets from the last reaped boundary
	var aheadTsc uint64
	if refTsc+delay > w.curTsc {
		aheadTsc = refTsc + delay - w.curTsc
	}
	slots := int(aheadTsc / w.wslotWidthTsc)
	if slots >= w.numWslots {
		slots = w.numWslots - 1
	}
	idx := (w.curWslot + slots) % w.numWslots
	w.buckets[idx] = append(w.buckets[idx], ent)
	w.numEntries++
}

// reap moves every entry in buckets due at nowTsc onto the ready queue.
func (w *timingWheel) reap(nowTsc uint64) {
	for w.curTsc+w.wslotWidthTsc <= nowTsc {
		b := w.buckets[w.curWslot]
		if len(b) > 0 {
			w.readyQueue = append(w.readyQueue, b...)
			w.buckets[w.curWslot] = b[:0]
			w.numEntries -= len(b)
		}
		w.curWslot = (w.curWslot + 1) % w.numWslots
		w.curTsc += w.wslotWidthTsc
	}
}

// drainReady returns the ready queue and resets it.
func (w *timingWheel) drainReady() []wheelEnt {
	rq := w.readyQueue
	w.readyQueue = nil
	return rq
}

func (w *timingWheel) String() string {
	return fmt.Sprintf("[TimingWheel %d entries, %d ready]",
		w.numEntries, len(w.readyQueue))
}

package erpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_TimingWheel_ImmediateEntry(t *testing.T) {
	w := newTimingWheel(1.0)
	now := rdtsc()
	w.insert(wheelEnt{pktNum: 1}, now, now) // due immediately
	w.reap(now + 2*w.wslotWidthTsc)
	ready := w.drainReady()
	assert.Equal(t, 1, len(ready))
	assert.Equal(t, 1, ready[0].pktNum)
	assert.Equal(t, 0, w.numEntries)
}

func Test_TimingWheel_DelayedEntry(t *testing.T) {
	w := newTimingWheel(1.0)
	now := rdtsc()
	delay := 100 * w.wslotWidthTsc
	w.insert(wheelEnt{pktNum: 2}, now, now+delay)

	w.reap(now + delay/2)
	assert.Equal(t, 0, len(w.drainReady()))

	w.reap(now + 2*delay)
	ready := w.drainReady()
	assert.Equal(t, 1, len(ready))
	assert.Equal(t, 2, ready[0].pktNum)
}

func Test_TimingWheel_HorizonClamp(t *testing.T) {
	w := newTimingWheel(1.0)
	now := rdtsc()
	// A target far beyond the horizon still lands inside it.
	w.insert(wheelEnt{pktNum: 3}, now, now+100*w.horizonTsc)
	w.reap(now + w.horizonTsc + 2*w.wslotWidthTsc)
	assert.Equal(t, 1, len(w.drainReady()))
}

func Test_TimingWheel_OrderAcrossBuckets(t *testing.T) {
	w := newTimingWheel(1.0)
	now := rdtsc()
	w.insert(wheelEnt{pktNum: 1}, now, now+10*w.wslotWidthTsc)
	w.insert(wheelEnt{pktNum: 2}, now, now+20*w.wslotWidthTsc)
	w.reap(now + 30*w.wslotWidthTsc)
	ready := w.drainReady()
	assert.Equal(t, 2, len(ready))
	assert.Equal(t, 1, ready[0].pktNum)
	assert.Equal(t, 2, ready[1].pktNum)
}

func Test_TimingWheel_RealTimeReap(t *testing.T) {
	w := newTimingWheel(measureFreqGHz())
	now := rdtsc()
	w.insert(wheelEnt{pktNum: 4}, now, now+usToCycles(100, 1.0))
	time.Sleep(time.Millisecond)
	w.reap(rdtsc())
	assert.Equal(t, 1, len(w.drainReady()))
}

package erpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_CcState_Uncongested(t *testing.T) {
	cc := ccState{timely: newTimely(1.0, 1e9)}
	assert.True(t, cc.isUncongested())
	cc.timely.rateBps = 1e6
	assert.False(t, cc.isUncongested())
}

func Test_CcState_PacingAdvances(t *testing.T) {
	cc := ccState{timely: newTimely(1.0, 1e9)}
	cc.timely.rateBps = 1e6 // 1000 cycles per byte of pacing gap

	ref := rdtsc()
	d1 := cc.getUpdateTxTsc(ref, 1000)
	d2 := cc.getUpdateTxTsc(ref, 1000)
	assert.True(t, d1 >= ref)
	assert.True(t, d2 > d1)
	assert.Equal(t, d2-d1, uint64(1000*1e9/1e6))
}

func Test_Timely_RecordsRtt(t *testing.T) {
	tm := newTimely(1.0, 1e9)
	tm.updateRate(100, 42)
	assert.Equal(t, uint64(42), tm.lastRtt)
	assert.Equal(t, uint64(1), tm.numUpdates)
}

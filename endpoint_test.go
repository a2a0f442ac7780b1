package erpc

import (
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Rpc_MsgBufferAPI(t *testing.T) {
	env := newTestEnv(t, 0, ReqFuncForeground)
	defer env.close()
	rpc := env.client

	mb := rpc.AllocMsgBuffer(100)
	require.True(t, mb.IsValid())
	assert.True(t, mb.IsDynamic())
	assert.Equal(t, 100, mb.MaxDataSize())
	assert.Equal(t, 1, mb.NumPkts())

	rpc.ResizeMsgBuffer(&mb, 10)
	assert.Equal(t, 10, mb.DataSize())
	rpc.ResizeMsgBuffer(&mb, 0)
	assert.Equal(t, 0, mb.DataSize())
	assert.Equal(t, 1, mb.NumPkts())
	assert.Panics(t, func() { rpc.ResizeMsgBuffer(&mb, 101) })

	rpc.FreeMsgBuffer(&mb)
	assert.False(t, mb.IsValid())
	assert.Panics(t, func() { rpc.FreeMsgBuffer(&mb) })

	// Oversized and non-positive allocations return invalid buffers.
	oversized := rpc.AllocMsgBuffer(rpc.GetMaxMsgSize() + 1)
	assert.False(t, oversized.IsValid())
	zeroSized := rpc.AllocMsgBuffer(0)
	assert.False(t, zeroSized.IsValid())

	multi := rpc.AllocMsgBufferOrDie(3 * rpc.GetMaxDataPerPkt())
	assert.Equal(t, 3, multi.NumPkts())
	rpc.FreeMsgBuffer(&multi)
}

func Test_Rpc_ExpertAPIs(t *testing.T) {
	env := newTestEnv(t, 0, ReqFuncForeground)
	defer env.close()
	rpc := env.client

	assert.Equal(t, uint8(2), rpc.GetRpcID())
	assert.True(t, rpc.GetFreqGHz() > 0)
	assert.True(t, rpc.GetBandwidth() > 0)
	assert.True(t, rpc.GetMaxMsgSize() > rpc.GetMaxDataPerPkt())
	assert.Equal(t, rpc.consts.NumRxRingEntries/SessionCredits, rpc.GetMaxNumSessions())
	assert.True(t, rpc.SecSinceCreation() >= 0)
	assert.NotNil(t, rpc.GetWheel())
	assert.Equal(t, env.nexus.URI(), rpc.GetRemoteHostname(env.sessionNum))
	assert.False(t, rpc.InBackground())

	assert.Equal(t, -1.0, rpc.GetAvgTxBatch())
	_, err := rpc.LatencyPercentiles(50)
	assert.Error(t, err) // no samples yet
}

func Test_Rpc_Metrics(t *testing.T) {
	env := newTestEnv(t, 0, ReqFuncForeground)
	defer env.close()

	reg := prometheus.NewRegistry()
	require.NoError(t, env.client.RegisterMetrics(reg))
	assert.Error(t, env.client.RegisterMetrics(reg)) // double registration

	req := env.client.AllocMsgBufferOrDie(64)
	resp := env.client.AllocMsgBufferOrDie(64)
	var done int64
	env.client.EnqueueRequest(env.sessionNum, echoReqType, &req, &resp,
		func(respHandle RespHandle, context interface{}, tag uint64) {
			env.client.ReleaseResponse(respHandle)
			atomic.StoreInt64(&done, 1)
		}, 0, InvalidBgETid)
	env.pumpUntil("metrics echo", func() bool { return atomic.LoadInt64(&done) == 1 })

	assert.Equal(t, 1.0, testutil.ToFloat64(env.client.metrics.pktsTx))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.client.metrics.pktsRx))
	assert.True(t, testutil.ToFloat64(env.client.metrics.evLoopCalls) > 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(env.client.metrics.retransmits))

	env.client.FreeMsgBuffer(&req)
	env.client.FreeMsgBuffer(&resp)
}

func Test_Rpc_LatencyPercentiles(t *testing.T) {
	env := newTestEnv(t, 0, ReqFuncForeground)
	defer env.close()

	req := env.client.AllocMsgBufferOrDie(64)
	resp := env.client.AllocMsgBufferOrDie(64)
	var done int64
	env.client.EnqueueRequest(env.sessionNum, echoReqType, &req, &resp,
		func(respHandle RespHandle, context interface{}, tag uint64) {
			env.client.ReleaseResponse(respHandle)
			atomic.StoreInt64(&done, 1)
		}, 0, InvalidBgETid)
	env.pumpUntil("latency echo", func() bool { return atomic.LoadInt64(&done) == 1 })

	pcts, err := env.client.LatencyPercentiles(50, 99)
	require.NoError(t, err)
	assert.Equal(t, 2, len(pcts))
	assert.True(t, pcts[0] > 0)
	assert.True(t, pcts[1] >= pcts[0])

	env.client.FreeMsgBuffer(&req)
	env.client.FreeMsgBuffer(&resp)
}

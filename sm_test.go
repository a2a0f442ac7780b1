package erpc

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_SmPkt_MarshalUnmarshal(t *testing.T) {
	in := smPkt{
		pktType:   SmPktConnectReq,
		errType:   SmErrNone,
		uniqToken: uuid.New(),
		client: smSessionEndpoint{
			uri:         "10.0.0.1:31850",
			rpcID:       3,
			sessionNum:  17,
			routingInfo: []byte("10.0.0.1:31850/3"),
		},
		server: smSessionEndpoint{
			uri:        "10.0.0.2:31850",
			rpcID:      5,
			sessionNum: 0,
		},
	}
	out, err := unmarshalSmPkt(in.marshal())
	require.NoError(t, err)
	assert.Equal(t, in.pktType, out.pktType)
	assert.Equal(t, in.errType, out.errType)
	assert.Equal(t, in.uniqToken, out.uniqToken)
	assert.Equal(t, in.client.uri, out.client.uri)
	assert.Equal(t, in.client.rpcID, out.client.rpcID)
	assert.Equal(t, in.client.sessionNum, out.client.sessionNum)
	assert.Equal(t, in.client.routingInfo, out.client.routingInfo)
	assert.Equal(t, in.server.uri, out.server.uri)
	assert.Nil(t, out.server.routingInfo)
}

func Test_SmPkt_UnmarshalShort(t *testing.T) {
	full := smPkt{pktType: SmPktConnectResp, uniqToken: uuid.New()}.marshal()
	for cut := 0; cut < len(full); cut++ {
		_, err := unmarshalSmPkt(full[:cut])
		assert.Error(t, err, "cut %d", cut)
	}
	_, err := unmarshalSmPkt(full)
	assert.NoError(t, err)
}

func Test_SmPktType_Direction(t *testing.T) {
	assert.True(t, SmPktConnectReq.isReq())
	assert.True(t, SmPktDisconnectReq.isReq())
	assert.False(t, SmPktConnectResp.isReq())
	assert.False(t, SmPktDisconnectResp.isReq())
	assert.False(t, SmPktReset.isReq())
}

package erpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Session_ClientDefaults(t *testing.T) {
	sess := newSession(true, 1, 3, 1.0, 1e9)
	assert.True(t, sess.isClient)
	assert.Equal(t, SessionConnectInProgress, sess.state)
	assert.Equal(t, SessionCredits, sess.credits)
	assert.Equal(t, SessionReqWindow, len(sess.sslotFreeVec))
	for i := range sess.sslots {
		ss := &sess.sslots[i]
		assert.Equal(t, sess, ss.session)
		assert.Equal(t, i, ss.index)
		assert.Equal(t, uint64(i), ss.curReqNum)
		assert.Equal(t, InvalidBgETid, ss.clientInfo.contEtid)
	}
}

func Test_Session_ServerDefaults(t *testing.T) {
	sess := newSession(false, 1, 0, 1.0, 1e9)
	assert.False(t, sess.isClient)
	assert.Equal(t, SessionConnected, sess.state)
	assert.Equal(t, 0, len(sess.sslotFreeVec)) // server slots are driven by the wire
}

func Test_Session_SlotReqNumMapping(t *testing.T) {
	sess := newSession(true, 1, 0, 1.0, 1e9)
	ss := &sess.sslots[5]
	ss.curReqNum += SessionReqWindow
	assert.Equal(t, uint64(5+SessionReqWindow), ss.curReqNum)
	assert.Equal(t, uint64(5), ss.curReqNum%SessionReqWindow)
}

func Test_WirePkts_RespNtoi(t *testing.T) {
	req := makeMsgBuffer(4*4096, 4096)
	resp := makeMsgBuffer(4*4096, 4096)
	assert.Equal(t, 7, wirePkts(&req, &resp))
	// The first response packet reuses the last request packet's number.
	assert.Equal(t, 0, respNtoi(3, 4))
	assert.Equal(t, 3, respNtoi(6, 4))

	single := makeMsgBuffer(64, 4096)
	assert.Equal(t, 1, wirePkts(&single, &single))
	assert.Equal(t, 0, respNtoi(0, 1))
}

// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionState enumerates the lifecycle of a session.
type SessionState int32

const (
	// SessionConnectInProgress means the connect request is in flight.
	SessionConnectInProgress SessionState = iota
	// SessionConnected means the session is usable for requests.
	SessionConnected
	// SessionDisconnectInProgress means the disconnect request is in
	// flight.
	SessionDisconnectInProgress
	// SessionResetInProgress means the session is being torn down after
	// an error.
	SessionResetInProgress
	// SessionDisconnected is terminal; the session's slot in the session
	// vector holds nil afterwards.
	SessionDisconnected
)

var sessionStateTexts = map[SessionState]string{
	SessionConnectInProgress:    "connect-in-progress",
	SessionConnected:            "connected",
	SessionDisconnectInProgress: "disconnect-in-progress",
	SessionResetInProgress:      "reset-in-progress",
	SessionDisconnected:         "disconnected",
}

func (ss SessionState) String() string {
	if s, ok := sessionStateTexts[ss]; ok {
		return s
	}
	return fmt.Sprintf("SessionState(%d)", int32(ss))
}

// Session is a bidirectional association between two endpoints. All fields
// belong to the owning endpoint's dispatch goroutine.
type Session struct {
	isClient bool
	state    SessionState

	localRpcID  uint8
	remoteRpcID uint8
	remoteURI   string // hostname:udp_port of the remote Nexus

	localSessionNum uint16
	remSessionNum   uint16

	// remoteRoutingInfo is the transport-opaque route to the peer.
	remoteRoutingInfo []byte

	sslots [SessionReqWindow]SSlot

	// credits is the client-side send budget. One credit per transmitted
	// packet; returned by explicit CRs and response packets.
	credits int

	// sslotFreeVec holds the indices of idle slots.
	sslotFreeVec []int

	// enqReqBacklog buffers EnqueueRequest calls that arrived while no
	// slot was free. Non-empty only while every slot is busy.
	enqReqBacklog []enqReqArgs

	cc ccState

	// numReTx counts datapath retransmissions on this session.
	numReTx uint64

	// connReqToken makes retried connect requests idempotent: the server
	// maps it to the session it already allocated.
	connReqToken uuid.UUID

	// smReqTxTsc is when the last session management request was sent,
	// for SM retransmission.
	smReqTxTsc uint64
}

func (s *Session) isConnected() bool {
	return s.state == SessionConnected
}

func (s *Session) String() string {
	role := "server"
	if s.isClient {
		role = "client"
	}
	return fmt.Sprintf("[Session %d %s %s credits %d]",
		s.localSessionNum, role, s.state, s.credits)
}

// newSession initializes a session and its sslots for one role.
func newSession(isClient bool, localRpcID uint8, localSessionNum uint16, freqGHz float64, linkBps float64) *Session {
	sess := &Session{
		isClient:        isClient,
		state:           SessionConnectInProgress,
		localRpcID:      localRpcID,
		localSessionNum: localSessionNum,
		credits:         SessionCredits,
		cc:              ccState{timely: newTimely(freqGHz, linkBps)},
	}
	if !isClient {
		sess.state = SessionConnected
	}
	for i := range sess.sslots {
		ss := &sess.sslots[i]
		ss.session = sess
		ss.index = i
		ss.isClient = isClient
		ss.clientInfo.contEtid = InvalidBgETid
		// Request numbers advance by the window size per slot reuse, so
		// the slot for a request is always reqNum % SessionReqWindow.
		ss.curReqNum = uint64(i)
		if isClient {
			sess.sslotFreeVec = append(sess.sslotFreeVec, i)
		}
	}
	return sess
}

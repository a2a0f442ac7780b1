// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import "fmt"

// SSlot holds the state of one in-flight RPC on a session. A slot's role
// follows its session's role and is fixed for the session's lifetime; only
// the matching one of clientInfo or serverInfo is ever used.
type SSlot struct {
	session  *Session
	index    int
	isClient bool

	// curReqNum is the request number of the RPC occupying this slot.
	// Slot index = curReqNum % SessionReqWindow. Non-decreasing.
	curReqNum uint64

	// txMsgbuf is the message this slot is transmitting: the request on
	// the client, the response on the server. nil when idle.
	txMsgbuf *MsgBuffer

	// preallocUsed is true when a server response uses the slot's
	// preallocated buffer.
	preallocUsed bool

	clientInfo clientInfo
	serverInfo serverInfo
}

// clientInfo is the client-side half of an sslot.
type clientInfo struct {
	respMsgbuf *MsgBuffer
	contFunc   ContFunc
	tag        uint64
	contEtid   int // background thread for the continuation, or InvalidBgETid

	// numTx counts packets sent on the wire for this RPC: request
	// packets, then RFRs. numRx counts packets received: credit returns,
	// then response packets. Wheel-resident packets are in neither.
	numTx int
	numRx int

	// progressTsc is the time of the last TX or RX progress, used by the
	// packet-loss scanner.
	progressTsc uint64

	// txTs records per-packet transmit timestamps for RTT measurement,
	// indexed by pktNum % SessionCredits.
	txTs [SessionCredits]uint64

	// inWheel marks packets waiting in the timing wheel, indexed by
	// pktNum % SessionCredits. wheelCount is its popcount.
	inWheel    [SessionCredits]bool
	wheelCount int

	inStallq bool

	// Active-RPC list links. The list has permanent sentinels so insert
	// and remove are branch-free.
	next, prev *SSlot
}

// serverInfo is the server-side half of an sslot.
type serverInfo struct {
	// reqMsgbuf holds the request being received. Fake for single-packet
	// requests, dynamic for multi-packet ones.
	reqMsgbuf MsgBuffer
	reqType   uint8

	// numRx counts request packets received for the current request.
	numRx int

	// savNumReqPkts is the request's packet count, saved so response
	// packet numbers can be computed after the request buffer is buried.
	savNumReqPkts int

	// preRespMsgbuf is the slot's preallocated single-packet response
	// buffer. respMsgbuf points at it or at a dynamic buffer.
	preRespMsgbuf MsgBuffer
	respMsgbuf    *MsgBuffer
}

// ReqMsgbuf returns the request buffer. Valid inside a request handler.
// The buffer may alias receive-ring memory; background handlers receive a
// copy made by the runtime.
func (s *SSlot) ReqMsgbuf() *MsgBuffer {
	return &s.serverInfo.reqMsgbuf
}

// ReqType returns the request's application-defined type.
func (s *SSlot) ReqType() uint8 {
	return s.serverInfo.reqType
}

// PreRespMsgbuf selects the slot's preallocated response buffer and
// returns it. It holds at most one packet's worth of data.
func (s *SSlot) PreRespMsgbuf() *MsgBuffer {
	s.preallocUsed = true
	s.serverInfo.respMsgbuf = &s.serverInfo.preRespMsgbuf
	return s.serverInfo.respMsgbuf
}

// SetDynRespMsgbuf selects a caller-allocated dynamic response buffer.
// The runtime frees it after the response is superseded.
func (s *SSlot) SetDynRespMsgbuf(mb *MsgBuffer) {
	s.preallocUsed = false
	s.serverInfo.respMsgbuf = mb
}

// RespMsgbuf returns the client's response buffer. Valid inside a
// continuation.
func (s *SSlot) RespMsgbuf() *MsgBuffer {
	return s.clientInfo.respMsgbuf
}

// Tag returns the request's user tag.
func (s *SSlot) Tag() uint64 {
	return s.clientInfo.tag
}

// progressStr renders the slot's packet counters for trace logs.
func (s *SSlot) progressStr() string {
	if s.isClient {
		return fmt.Sprintf("[%d,%d]", s.clientInfo.numTx, s.clientInfo.numRx)
	}
	return fmt.Sprintf("[rx %d]", s.serverInfo.numRx)
}

func (s *SSlot) String() string {
	return fmt.Sprintf("[SSlot %d req %d %s]", s.index, s.curReqNum, s.progressStr())
}

// wirePkts returns the total packets one side sends on the wire for a
// request/response pair: request packets plus RFRs on the client, or
// credit returns plus response packets on the server.
func wirePkts(reqMsgbuf, respMsgbuf *MsgBuffer) int {
	return reqMsgbuf.NumPkts() + respMsgbuf.NumPkts() - 1
}

// respNtoi converts a response packet's wire packet number to its index in
// the response MsgBuffer. Response packet numbers continue the request's:
// the first response packet reuses the last request packet's number.
func respNtoi(pktNum, numReqPkts int) int {
	return pktNum - (numReqPkts - 1)
}

// reqPktsPending returns true if the slot still has request packets to send.
func reqPktsPending(s *SSlot) bool {
	return s.clientInfo.numTx+s.clientInfo.wheelCount < s.txMsgbuf.NumPkts()
}

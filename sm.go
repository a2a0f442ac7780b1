// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

// Session management packets travel over a UDP side channel between
// Nexuses. The Nexus deposits received packets into the target endpoint's
// hook under a mutex; the endpoint drains the hook once per event-loop
// iteration.

package erpc

import (
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SmPktType enumerates session management packet types.
type SmPktType uint8

const (
	// SmPktConnectReq asks the server to allocate a session.
	SmPktConnectReq SmPktType = iota
	// SmPktConnectResp carries the server's session number or an error.
	SmPktConnectResp
	// SmPktDisconnectReq asks the server to bury its session half.
	SmPktDisconnectReq
	// SmPktDisconnectResp confirms the disconnect.
	SmPktDisconnectResp
	// SmPktReset tells the peer to abandon the session unilaterally.
	SmPktReset
)

var smPktTypeTexts = map[SmPktType]string{
	SmPktConnectReq:     "connect-req",
	SmPktConnectResp:    "connect-resp",
	SmPktDisconnectReq:  "disconnect-req",
	SmPktDisconnectResp: "disconnect-resp",
	SmPktReset:          "reset",
}

func (pt SmPktType) String() string {
	if s, ok := smPktTypeTexts[pt]; ok {
		return s
	}
	return fmt.Sprintf("SmPktType(%d)", uint8(pt))
}

func (pt SmPktType) isReq() bool {
	return pt == SmPktConnectReq || pt == SmPktDisconnectReq
}

// SmErrType enumerates session management error causes.
type SmErrType uint8

const (
	// SmErrNone means success.
	SmErrNone SmErrType = iota
	// SmErrInvalidRemoteRpcID means no endpoint with the requested ID
	// exists at the server.
	SmErrInvalidRemoteRpcID
	// SmErrNoRingEntries means the server cannot reserve receive-ring
	// entries for another session.
	SmErrNoRingEntries
	// SmErrRoutingResolutionFailure means the transport could not
	// resolve the peer's routing info.
	SmErrRoutingResolutionFailure
)

var smErrTypeTexts = map[SmErrType]string{
	SmErrNone:                     "no error",
	SmErrInvalidRemoteRpcID:       "invalid remote rpc id",
	SmErrNoRingEntries:            "no ring entries",
	SmErrRoutingResolutionFailure: "routing resolution failure",
}

func (et SmErrType) String() string {
	if s, ok := smErrTypeTexts[et]; ok {
		return s
	}
	return fmt.Sprintf("SmErrType(%d)", uint8(et))
}

// SmEventType enumerates the asynchronous outcomes surfaced to the
// application's session management handler.
type SmEventType uint8

const (
	// SmEventConnected fires on the client when a session connects.
	SmEventConnected SmEventType = iota
	// SmEventConnectFailed fires on the client when a connect is refused.
	SmEventConnectFailed
	// SmEventDisconnected fires on the client when a disconnect
	// completes.
	SmEventDisconnected
	// SmEventReset fires when the peer resets the session.
	SmEventReset
	// SmEventResetComplete fires when a local reset finishes.
	SmEventResetComplete
)

var smEventTypeTexts = map[SmEventType]string{
	SmEventConnected:     "connected",
	SmEventConnectFailed: "connect failed",
	SmEventDisconnected:  "disconnected",
	SmEventReset:         "reset",
	SmEventResetComplete: "reset complete",
}

func (et SmEventType) String() string {
	if s, ok := smEventTypeTexts[et]; ok {
		return s
	}
	return fmt.Sprintf("SmEventType(%d)", uint8(et))
}

// SmHandler receives asynchronous session management outcomes.
type SmHandler func(sessionNum int, event SmEventType, errType SmErrType, context interface{})

// smSessionEndpoint identifies one end of a session in an SM packet.
type smSessionEndpoint struct {
	uri         string // hostname:udp_port of the Nexus
	rpcID       uint8
	sessionNum  uint16
	routingInfo []byte
}

func (se smSessionEndpoint) String() string {
	return fmt.Sprintf("%s/%d sess %d", se.uri, se.rpcID, se.sessionNum)
}

// smPkt is a session management packet.
type smPkt struct {
	pktType   SmPktType
	errType   SmErrType
	uniqToken uuid.UUID
	client    smSessionEndpoint
	server    smSessionEndpoint
}

func (p smPkt) String() string {
	return fmt.Sprintf("[SmPkt %s %s client %s server %s]",
		p.pktType, p.errType, p.client, p.server)
}

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func appendBlob(b, blob []byte) []byte {
	b = appendU16(b, uint16(len(blob)))
	return append(b, blob...)
}

func (se smSessionEndpoint) marshal(b []byte) []byte {
	b = appendBlob(b, []byte(se.uri))
	b = append(b, se.rpcID)
	b = appendU16(b, se.sessionNum)
	return appendBlob(b, se.routingInfo)
}

// marshal encodes the packet for the UDP side channel.
func (p smPkt) marshal() []byte {
	b := make([]byte, 0, 128)
	b = append(b, byte(p.pktType), byte(p.errType))
	b = append(b, p.uniqToken[:]...)
	b = p.client.marshal(b)
	return p.server.marshal(b)
}

type smUnmarshaler struct {
	b   []byte
	err error
}

func (u *smUnmarshaler) u16() uint16 {
	if u.err != nil || len(u.b) < 2 {
		u.err = errors.New("short sm packet")
		return 0
	}
	v := uint16(u.b[0]) | uint16(u.b[1])<<8
	u.b = u.b[2:]
	return v
}

func (u *smUnmarshaler) blob() []byte {
	n := int(u.u16())
	if u.err != nil || len(u.b) < n {
		u.err = errors.New("short sm packet")
		return nil
	}
	v := u.b[:n]
	u.b = u.b[n:]
	return v
}

func (u *smUnmarshaler) byte() byte {
	if u.err != nil || len(u.b) < 1 {
		u.err = errors.New("short sm packet")
		return 0
	}
	v := u.b[0]
	u.b = u.b[1:]
	return v
}

func (u *smUnmarshaler) endpoint() (se smSessionEndpoint) {
	se.uri = string(u.blob())
	se.rpcID = u.byte()
	se.sessionNum = u.u16()
	if blob := u.blob(); len(blob) > 0 {
		se.routingInfo = append([]byte(nil), blob...)
	}
	return
}

// unmarshalSmPkt decodes a packet received on the UDP side channel.
func unmarshalSmPkt(b []byte) (p smPkt, err error) {
	u := &smUnmarshaler{b: b}
	p.pktType = SmPktType(u.byte())
	p.errType = SmErrType(u.byte())
	if u.err == nil && len(u.b) >= len(p.uniqToken) {
		copy(p.uniqToken[:], u.b)
		u.b = u.b[len(p.uniqToken):]
	} else {
		u.err = errors.New("short sm packet")
	}
	p.client = u.endpoint()
	p.server = u.endpoint()
	return p, errors.WithStack(u.err)
}

// smPktUdpTx sends an SM packet to the peer Nexus. Requests go to the
// server's URI, responses to the client's.
func (r *Rpc) smPktUdpTx(p smPkt) {
	dstURI := p.server.uri
	if !p.pktType.isReq() {
		dstURI = p.client.uri
	}
	addr, err := net.ResolveUDPAddr("udp", dstURI)
	if err != nil {
		r.log.WithError(err).Error("cannot resolve SM destination")
		return
	}
	if _, err := r.smConn.WriteToUDP(p.marshal(), addr); err != nil {
		r.log.WithError(err).Error("SM packet send failed")
	}
}

// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import "fmt"

// MsgBuffer is a contiguous message buffer whose first bytes are a packet
// header sequence, one header per packet's worth of payload, immediately
// followed by the payload. The header region is sized for the buffer's
// maximum packet count so resizing never moves the payload.
//
// A dynamic MsgBuffer is owned by the runtime and freeable through the
// allocator. A fake MsgBuffer aliases receive-ring bytes and must not
// outlive the event-loop iteration that produced it.
type MsgBuffer struct {
	buf           []byte // headers followed by payload, nil if invalid
	maxDataSize   int
	dataSize      int
	maxNumPkts    int
	numPkts       int
	maxDataPerPkt int
	dynamic       bool // freeable via the allocator
	fake          bool // aliases RX-ring bytes
	class         int  // allocator size class for dynamic buffers
}

// IsValid returns true if the buffer has backing memory.
func (mb *MsgBuffer) IsValid() bool {
	return mb != nil && mb.buf != nil
}

// IsDynamic returns true if the buffer is owned by the runtime and freeable.
func (mb *MsgBuffer) IsDynamic() bool { return mb.dynamic }

// IsFake returns true if the buffer aliases receive-ring bytes.
func (mb *MsgBuffer) IsFake() bool { return mb.fake }

// MaxDataSize returns the largest data size the buffer can hold.
func (mb *MsgBuffer) MaxDataSize() int { return mb.maxDataSize }

// DataSize returns the current data size.
func (mb *MsgBuffer) DataSize() int { return mb.dataSize }

// NumPkts returns the number of packets for the current data size.
func (mb *MsgBuffer) NumPkts() int { return mb.numPkts }

// Data returns the payload bytes for the current data size.
func (mb *MsgBuffer) Data() []byte {
	return mb.buf[mb.maxNumPkts*PktHdrSize : mb.maxNumPkts*PktHdrSize+mb.dataSize]
}

// PktHdrN returns the header for packet index n.
func (mb *MsgBuffer) PktHdrN(n int) PktHdr {
	return PktHdr(mb.buf[n*PktHdrSize : (n+1)*PktHdrSize])
}

// PktHdr0 returns the zeroth packet header.
func (mb *MsgBuffer) PktHdr0() PktHdr {
	return PktHdr(mb.buf[:PktHdrSize])
}

// PktSize returns the number of data bytes carried by packet index n.
func (mb *MsgBuffer) PktSize(n int) int {
	offset := n * mb.maxDataPerPkt
	remain := mb.dataSize - offset
	if remain > mb.maxDataPerPkt {
		return mb.maxDataPerPkt
	}
	if remain < 0 {
		return 0
	}
	return remain
}

// PktData returns the payload fragment for packet index n.
func (mb *MsgBuffer) PktData(n int) []byte {
	offset := mb.maxNumPkts*PktHdrSize + n*mb.maxDataPerPkt
	return mb.buf[offset : offset+mb.PktSize(n)]
}

// resize shrinks the buffer's current data size. The packet headers are not
// modified.
func (mb *MsgBuffer) resize(newDataSize, newNumPkts int) {
	mb.dataSize = newDataSize
	mb.numPkts = newNumPkts
}

func (mb *MsgBuffer) String() string {
	if !mb.IsValid() {
		return "[MsgBuffer invalid]"
	}
	kind := "static"
	if mb.dynamic {
		kind = "dynamic"
	}
	if mb.fake {
		kind = "fake"
	}
	return fmt.Sprintf("[MsgBuffer %s %d/%d bytes %d/%d pkts]",
		kind, mb.dataSize, mb.maxDataSize, mb.numPkts, mb.maxNumPkts)
}

// newMsgBuffer wraps backing memory as a MsgBuffer. The backing slice must
// hold maxNumPkts headers plus maxDataSize payload bytes.
func newMsgBuffer(buf []byte, maxDataSize, maxNumPkts, maxDataPerPkt int) MsgBuffer {
	mb := MsgBuffer{
		buf:           buf,
		maxDataSize:   maxDataSize,
		dataSize:      maxDataSize,
		maxNumPkts:    maxNumPkts,
		numPkts:       maxNumPkts,
		maxDataPerPkt: maxDataPerPkt,
	}
	mb.PktHdr0().SetPktType(PktTypeReq) // sets the magic nibble
	return mb
}

// newFakeMsgBuffer views a received packet (header plus payload) as a
// single-packet MsgBuffer without copying.
func newFakeMsgBuffer(pkt []byte, dataSize, maxDataPerPkt int) MsgBuffer {
	return MsgBuffer{
		buf:           pkt,
		maxDataSize:   dataSize,
		dataSize:      dataSize,
		maxNumPkts:    1,
		numPkts:       1,
		maxDataPerPkt: maxDataPerPkt,
		fake:          true,
	}
}

// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

// TransportConsts are the capability constants of a transport.
type TransportConsts struct {
	// MaxDataPerPkt is the maximum data bytes in one packet, excluding
	// the packet header.
	MaxDataPerPkt int
	// NumRxRingEntries is the size of the receive ring.
	NumRxRingEntries int
	// Postlist is the maximum number of packets in one TX burst.
	Postlist int
	// UnsigBatch is the transport's unsignaled send batch size. The
	// endpoint sizes its control-packet ring at twice this value.
	UnsigBatch int
}

// TxBurstItem describes one packet in a TX burst.
type TxBurstItem struct {
	// RoutingInfo is the transport-opaque route to the destination.
	RoutingInfo []byte
	// MsgBuffer holds the packet's header and payload.
	MsgBuffer *MsgBuffer
	// PktIdx is the packet's index within MsgBuffer, not its wire
	// packet number.
	PktIdx int
	// TxTs, when non-nil, receives the transmission timestamp for RTT
	// measurement.
	TxTs *uint64
	// Drop, set only under fault injection, makes the transport discard
	// the packet after accounting for it.
	Drop bool
}

// Transport is the unreliable packet transport consumed by an endpoint.
// Implementations are not safe for concurrent use by multiple endpoints;
// each endpoint owns its transport instance.
type Transport interface {
	// Consts returns the transport's capability constants.
	Consts() TransportConsts

	// ResolveRoutingInfo resolves a remote endpoint's routing info from
	// its URI (hostname:udp_port) and endpoint ID.
	ResolveRoutingInfo(remoteURI string, remoteRpcID uint8) ([]byte, error)

	// TxBurst transmits a burst of packets. Items with Drop set are
	// discarded after being charged to the DMA queue.
	TxBurst(items []TxBurstItem)

	// TxFlush completes transmission of everything in the DMA queue.
	TxFlush()

	// RxBurst fills ring with pointers to received packets and returns
	// the count. The filled entries are only valid until the next call;
	// the caller must copy what it needs before then.
	RxBurst(ring [][]byte) int

	// Bandwidth returns the physical link bandwidth in bytes per second.
	Bandwidth() int

	// Close releases transport resources.
	Close()
}

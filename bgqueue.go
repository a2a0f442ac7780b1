// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import (
	"sync"
	"sync/atomic"
)

// mtQueue is a multi-producer, single-consumer queue. Producers lock, push
// and publish the size; the consumer reads the size without the lock and
// drains under it.
type mtQueue[T any] struct {
	mu    sync.Mutex
	items []T
	size  int64 // atomic
}

// push appends an item. Safe for concurrent producers.
func (q *mtQueue[T]) push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	atomic.StoreInt64(&q.size, int64(len(q.items)))
	q.mu.Unlock()
}

// approxSize returns the published size without taking the lock.
func (q *mtQueue[T]) approxSize() int {
	return int(atomic.LoadInt64(&q.size))
}

// drain removes and returns all queued items. Single consumer only.
func (q *mtQueue[T]) drain() []T {
	q.mu.Lock()
	items := q.items
	q.items = nil
	atomic.StoreInt64(&q.size, 0)
	q.mu.Unlock()
	return items
}

// bgWorkItemKind discriminates background work items.
type bgWorkItemKind int

const (
	bgWorkItemReq  bgWorkItemKind = iota // run a request handler
	bgWorkItemResp                       // run a continuation
)

// bgWorkItem is a unit of work handed from a dispatch goroutine to a
// background worker.
type bgWorkItem struct {
	kind    bgWorkItemKind
	rpc     *Rpc
	sslot   *SSlot
	context interface{}
}

func (wi bgWorkItem) isReq() bool { return wi.kind == bgWorkItemReq }

// enqReqArgs are the arguments of one EnqueueRequest call, kept for the
// session backlog and for requests issued from background threads.
type enqReqArgs struct {
	sessionNum int
	reqType    uint8
	reqMsgbuf  *MsgBuffer
	respMsgbuf *MsgBuffer
	contFunc   ContFunc
	tag        uint64
	contEtid   int
}

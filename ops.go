// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

// ReqHandle is passed to request handlers. It stays owned by the runtime
// until EnqueueResponse is called for it.
type ReqHandle = *SSlot

// RespHandle is passed to continuations. The continuation must hand it back
// with ReleaseResponse when done with the response buffer.
type RespHandle = *SSlot

// ContFunc is a client continuation, invoked with the response handle, the
// endpoint's application context and the request's tag.
type ContFunc func(respHandle RespHandle, context interface{}, tag uint64)

// ReqFuncType says where a request handler runs.
type ReqFuncType int

const (
	// ReqFuncForeground handlers run inline on the dispatch goroutine.
	// They may use the request buffer only until they return.
	ReqFuncForeground ReqFuncType = iota
	// ReqFuncBackground handlers run on a background worker. The runtime
	// copies ring-aliasing request buffers before the handoff.
	ReqFuncBackground
)

// ReqFunc is an application request handler registration.
type ReqFunc struct {
	// Func handles one request. It must eventually lead to an
	// EnqueueResponse call for the handle.
	Func func(reqHandle ReqHandle, context interface{})
	// Type selects foreground or background execution.
	Type ReqFuncType
}

func (rf ReqFunc) isRegistered() bool { return rf.Func != nil }

func (rf ReqFunc) isForeground() bool { return rf.Type == ReqFuncForeground }

// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// tlsRegistry assigns small integer thread IDs (etids) to goroutines.
// Background workers register first and get IDs [0, numBgThreads);
// dispatch goroutines register at endpoint construction.
type tlsRegistry struct {
	mu    sync.Mutex
	etids map[int64]int
	next  int
}

func newTlsRegistry() *tlsRegistry {
	return &tlsRegistry{etids: make(map[int64]int)}
}

// registerEtid assigns the calling goroutine the next etid, or returns the
// one it already has.
func (tr *tlsRegistry) registerEtid() int {
	id := goid()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if etid, ok := tr.etids[id]; ok {
		return etid
	}
	etid := tr.next
	tr.next++
	tr.etids[id] = etid
	return etid
}

// etid returns the calling goroutine's etid, or -1 if unregistered.
func (tr *tlsRegistry) etid() int {
	id := goid()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if etid, ok := tr.etids[id]; ok {
		return etid
	}
	return -1
}

var goidPrefix = []byte("goroutine ")

// goid returns the calling goroutine's runtime ID. Go offers no
// goroutine-local storage, so the ID is parsed from the stack header; the
// result is used only off the per-packet fast path.
func goid() int64 {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goidPrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		if id, err := strconv.ParseInt(string(b[:i]), 10, 64); err == nil {
			return id
		}
	}
	panic("cannot parse goroutine ID")
}

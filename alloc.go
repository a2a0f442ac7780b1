// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

// hugeAlloc is a slab allocator standing in for a hugepage-backed one. It
// keeps per-class free lists of power-of-two buffers and never returns
// memory to the runtime. Callers serialize access; the owning Rpc takes its
// allocator lock only when background threads exist.
type hugeAlloc struct {
	minClassSize int
	freeLists    [][][]byte
	capacity     int // bytes the allocator may still hand out
	userAllocTot int // bytes currently allocated to the user
}

const allocMinClassSize = 64

func newHugeAlloc(capacity int) *hugeAlloc {
	numClasses := 1
	for sz := allocMinClassSize; sz < MaxClassSize; sz <<= 1 {
		numClasses++
	}
	return &hugeAlloc{
		minClassSize: allocMinClassSize,
		freeLists:    make([][][]byte, numClasses),
		capacity:     capacity,
	}
}

// classOf returns the smallest size class index that fits size bytes, or -1
// if size exceeds the largest class.
func (ha *hugeAlloc) classOf(size int) int {
	class, classSize := 0, ha.minClassSize
	for classSize < size {
		class++
		classSize <<= 1
	}
	if classSize > MaxClassSize {
		return -1
	}
	return class
}

func (ha *hugeAlloc) classSize(class int) int {
	return ha.minClassSize << uint(class)
}

// alloc returns a buffer of at least size bytes and its size class, or nil
// when the allocator is exhausted. Exhaustion is not an error; the caller
// reports it by returning an invalid MsgBuffer.
func (ha *hugeAlloc) alloc(size int) ([]byte, int) {
	class := ha.classOf(size)
	if class < 0 {
		return nil, -1
	}
	if fl := ha.freeLists[class]; len(fl) > 0 {
		b := fl[len(fl)-1]
		ha.freeLists[class] = fl[:len(fl)-1]
		ha.userAllocTot += len(b)
		return b, class
	}
	classSize := ha.classSize(class)
	if classSize > ha.capacity {
		return nil, -1
	}
	ha.capacity -= classSize
	ha.userAllocTot += classSize
	return make([]byte, classSize), class
}

// free returns a buffer to its class free list.
func (ha *hugeAlloc) free(b []byte, class int) {
	if b == nil {
		return
	}
	ha.userAllocTot -= len(b)
	ha.freeLists[class] = append(ha.freeLists[class], b)
}

// statUserAllocTot returns the bytes currently allocated to the user.
func (ha *hugeAlloc) statUserAllocTot() int {
	return ha.userAllocTot
}

package erpc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_TlsRegistry_SameGoroutine(t *testing.T) {
	tr := newTlsRegistry()
	assert.Equal(t, -1, tr.etid())
	e1 := tr.registerEtid()
	e2 := tr.registerEtid()
	assert.Equal(t, e1, e2)
	assert.Equal(t, e1, tr.etid())
}

func Test_TlsRegistry_DistinctGoroutines(t *testing.T) {
	tr := newTlsRegistry()
	const n = 4
	etids := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			etids[i] = tr.registerEtid()
		}(i)
	}
	wg.Wait()
	seen := make(map[int]bool)
	for _, e := range etids {
		assert.False(t, seen[e])
		seen[e] = true
	}
}

func Test_Goid_Stable(t *testing.T) {
	assert.Equal(t, goid(), goid())
	var other int64
	done := make(chan struct{})
	go func() { other = goid(); close(done) }()
	<-done
	assert.NotEqual(t, goid(), other)
}

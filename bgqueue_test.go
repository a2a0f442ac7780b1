package erpc

import (
	"sync"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
)

func Test_MtQueue_PushDrain(t *testing.T) {
	var q mtQueue[int]
	assert.Equal(t, 0, q.approxSize())
	q.push(1)
	q.push(2)
	assert.Equal(t, 2, q.approxSize())
	items := q.drain()
	assert.Equal(t, []int{1, 2}, items)
	assert.Equal(t, 0, q.approxSize())
	assert.Equal(t, 0, len(q.drain()))
}

func Test_MtQueue_ConcurrentProducers(t *testing.T) {
	defer leaktest.Check(t)()

	var q mtQueue[int]
	const producers = 8
	const perProducer = 1000

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.push(p*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, v := range q.drain() {
		assert.False(t, seen[v])
		seen[v] = true
	}
	assert.Equal(t, producers*perProducer, len(seen))
}

package erpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_HugeAlloc_ClassSizes(t *testing.T) {
	ha := newHugeAlloc(1 << 20)
	b, class := ha.alloc(100)
	assert.NotNil(t, b)
	assert.Equal(t, 128, len(b))
	assert.Equal(t, 128, ha.classSize(class))
}

func Test_HugeAlloc_FreeListReuse(t *testing.T) {
	ha := newHugeAlloc(1 << 20)
	b1, c1 := ha.alloc(1000)
	ha.free(b1, c1)
	b2, c2 := ha.alloc(1000)
	assert.Equal(t, c1, c2)
	assert.Equal(t, &b1[0], &b2[0]) // same backing memory reused
}

func Test_HugeAlloc_Exhaustion(t *testing.T) {
	ha := newHugeAlloc(256)
	b1, c1 := ha.alloc(256)
	assert.NotNil(t, b1)
	b2, _ := ha.alloc(256)
	assert.Nil(t, b2) // exhausted, not an error
	ha.free(b1, c1)
	b3, _ := ha.alloc(256)
	assert.NotNil(t, b3)
}

func Test_HugeAlloc_TooLarge(t *testing.T) {
	ha := newHugeAlloc(1 << 30)
	b, class := ha.alloc(MaxClassSize + 1)
	assert.Nil(t, b)
	assert.Equal(t, -1, class)
}

func Test_HugeAlloc_UserAllocTot(t *testing.T) {
	ha := newHugeAlloc(1 << 20)
	assert.Equal(t, 0, ha.statUserAllocTot())
	b, c := ha.alloc(100)
	assert.Equal(t, 128, ha.statUserAllocTot())
	ha.free(b, c)
	assert.Equal(t, 0, ha.statUserAllocTot())
}

package erpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func makeMsgBuffer(maxDataSize, maxDataPerPkt int) MsgBuffer {
	maxNumPkts := dataSizeToNumPkts(maxDataSize, maxDataPerPkt)
	buf := make([]byte, maxNumPkts*PktHdrSize+maxDataSize)
	return newMsgBuffer(buf, maxDataSize, maxNumPkts, maxDataPerPkt)
}

func Test_MsgBuffer_SinglePkt(t *testing.T) {
	mb := makeMsgBuffer(100, 4096)
	assert.True(t, mb.IsValid())
	assert.Equal(t, 1, mb.NumPkts())
	assert.Equal(t, 100, mb.DataSize())
	assert.Equal(t, 100, mb.PktSize(0))
	assert.Equal(t, 100, len(mb.Data()))
	assert.True(t, mb.PktHdr0().CheckMagic())
}

func Test_MsgBuffer_MultiPkt(t *testing.T) {
	mb := makeMsgBuffer(3*4096+100, 4096)
	assert.Equal(t, 4, mb.NumPkts())
	assert.Equal(t, 4096, mb.PktSize(0))
	assert.Equal(t, 4096, mb.PktSize(2))
	assert.Equal(t, 100, mb.PktSize(3))

	// Packet fragments tile the payload
	for i := range mb.Data() {
		mb.Data()[i] = byte(i % 251)
	}
	off := 0
	for p := 0; p < mb.NumPkts(); p++ {
		frag := mb.PktData(p)
		for i := range frag {
			assert.Equal(t, byte((off+i)%251), frag[i])
		}
		off += len(frag)
	}
	assert.Equal(t, mb.DataSize(), off)
}

func Test_MsgBuffer_Resize(t *testing.T) {
	mb := makeMsgBuffer(3*4096, 4096)
	assert.Equal(t, 3, mb.NumPkts())
	mb.resize(10, dataSizeToNumPkts(10, 4096))
	assert.Equal(t, 1, mb.NumPkts())
	assert.Equal(t, 10, mb.DataSize())
	mb.resize(0, dataSizeToNumPkts(0, 4096))
	assert.Equal(t, 1, mb.NumPkts()) // zero size still occupies one packet
}

func Test_MsgBuffer_Fake(t *testing.T) {
	pkt := make([]byte, PktHdrSize+32)
	PktHdr(pkt).Format(PktTypeReq, 1, 32, 0, 0, 8, 0)
	for i := 0; i < 32; i++ {
		pkt[PktHdrSize+i] = byte(i)
	}
	mb := newFakeMsgBuffer(pkt, 32, 4096)
	assert.True(t, mb.IsFake())
	assert.False(t, mb.IsDynamic())
	assert.Equal(t, 32, mb.DataSize())
	assert.Equal(t, byte(5), mb.Data()[5])
	assert.True(t, mb.PktHdr0().CheckMagic())
}

func Test_DataSizeToNumPkts(t *testing.T) {
	assert.Equal(t, 1, dataSizeToNumPkts(0, 4096))
	assert.Equal(t, 1, dataSizeToNumPkts(4096, 4096))
	assert.Equal(t, 2, dataSizeToNumPkts(4097, 4096))
	assert.Equal(t, 4, dataSizeToNumPkts(16384, 4096))
}

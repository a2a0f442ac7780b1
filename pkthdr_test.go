package erpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func getPktHdr(t *testing.T) PktHdr {
	b := make([]byte, PktHdrSize)
	ph := PktHdr(b)
	assert.NotNil(t, ph)
	return ph
}

func Test_PktHdr_Format(t *testing.T) {
	ph := getPktHdr(t)
	ph.Format(PktTypeResp, 7, 0xabcdef, 0x1234, 0x3fff, 0xbeefcafe, 9)
	assert.True(t, ph.CheckMagic())
	assert.Equal(t, PktTypeResp, ph.PktType())
	assert.True(t, ph.IsResp())
	assert.False(t, ph.IsReq())
	assert.Equal(t, uint8(7), ph.ReqType())
	assert.Equal(t, 0xabcdef, ph.MsgSize())
	assert.Equal(t, uint16(0x1234), ph.DestSessionNum())
	assert.Equal(t, 0x3fff, ph.PktNum())
	assert.Equal(t, uint64(0xbeefcafe), ph.ReqNum())
	assert.Equal(t, uint8(9), ph.SrcRpcID())
}

func Test_PktHdr_Magic(t *testing.T) {
	ph := getPktHdr(t)
	assert.False(t, ph.CheckMagic())
	ph.SetPktType(PktTypeReq)
	assert.True(t, ph.CheckMagic())
}

func Test_PktHdr_Types(t *testing.T) {
	ph := getPktHdr(t)
	ph.SetPktType(PktTypeExplCR)
	assert.True(t, ph.IsExplCR())
	ph.SetPktType(PktTypeRFR)
	assert.True(t, ph.IsRFR())
	assert.Equal(t, "RFR", ph.PktType().String())
}

func Test_PktHdr_Ranges(t *testing.T) {
	ph := getPktHdr(t)
	assert.Panics(t, func() { ph.SetMsgSize(1 << 24) })
	assert.Panics(t, func() { ph.SetPktNum(1 << 16) })
	assert.Panics(t, func() { ph.SetReqNum(1 << 48) })
	ph.SetReqNum(1<<48 - 1)
	assert.Equal(t, uint64(1<<48-1), ph.ReqNum())
}

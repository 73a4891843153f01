package muxer

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// H.264 NAL unit types that matter for Annex-B start-code selection.
const (
	nalUnitTypeSPS = 7
	nalUnitTypePPS = 8
	nalUnitTypeIDR = 5
)

var (
	startCode4 = []byte{0x00, 0x00, 0x00, 0x01}
	startCode3 = []byte{0x00, 0x00, 0x01}
)

// ConvertAVCCToAnnexB rewrites length-prefixed AVCC data (what RTMP/FLV
// carries) into start-code-prefixed Annex-B (what the HLS/TS segmenter
// expects). SPS, PPS and IDR units get a 4-byte start code, every other
// unit a 3-byte one. Zero-length units are skipped; a unit whose length
// runs past the end of the input aborts the conversion with an error.
func ConvertAVCCToAnnexB(avccData []byte) ([]byte, error) {
	if len(avccData) == 0 {
		return nil, fmt.Errorf("avcc to annex-b: empty input")
	}

	var out bytes.Buffer
	offset := 0
	nalCount := 0

	for offset+4 <= len(avccData) {
		nalSize := binary.BigEndian.Uint32(avccData[offset : offset+4])
		offset += 4

		if nalSize == 0 {
			continue
		}
		if offset+int(nalSize) > len(avccData) {
			return nil, fmt.Errorf("avcc to annex-b: NAL size %d at offset %d exceeds remaining %d bytes", nalSize, offset-4, len(avccData)-offset)
		}

		nalUnit := avccData[offset : offset+int(nalSize)]
		offset += int(nalSize)

		nalType := nalUnit[0] & 0x1F
		if nalType == nalUnitTypeSPS || nalType == nalUnitTypePPS || nalType == nalUnitTypeIDR {
			out.Write(startCode4)
		} else {
			out.Write(startCode3)
		}
		out.Write(nalUnit)
		nalCount++
	}

	if nalCount == 0 {
		return nil, fmt.Errorf("avcc to annex-b: no NAL units found")
	}
	return out.Bytes(), nil
}

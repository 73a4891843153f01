package muxer

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// AVCDecoderConfigurationRecord is the AVCDecoderConfigurationRecord
// (ISO/IEC 14496-15) carried in an FLV video tag's sequence header: the
// codec profile/level plus the SPS/PPS NAL units a decoder needs before
// it can make sense of anything that follows.
type AVCDecoderConfigurationRecord struct {
	ConfigurationVersion uint8
	AVCProfileIndication uint8
	ProfileCompatibility uint8
	AVCLevelIndication   uint8
	NALUnitLength        uint8 // size, in bytes, of the length prefix on each NALU
	SPS                  [][]byte
	PPS                  [][]byte
}

// readU8 reads one big-endian byte from r, wrapping the field name into
// any read error so a truncated record says where it was truncated.
func readU8(r *bytes.Reader, field string) (uint8, error) {
	var v uint8
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("avc config record: reading %s: %w", field, err)
	}
	return v, nil
}

func readParameterSets(r *bytes.Reader, count uint8, field string) ([][]byte, error) {
	sets := make([][]byte, count)
	for i := range sets {
		var length uint16
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("avc config record: reading %s[%d] length: %w", field, i, err)
		}
		set := make([]byte, length)
		if n, err := r.Read(set); err != nil || n != int(length) {
			return nil, fmt.Errorf("avc config record: reading %s[%d] data: %w", field, i, err)
		}
		sets[i] = set
	}
	return sets, nil
}

// ParseAVCDecoderConfigurationRecord decodes the record out of an FLV
// video tag's body when AVCPacketType signals a sequence header (see
// ParseFLVVideoPacket).
func ParseAVCDecoderConfigurationRecord(data []byte) (*AVCDecoderConfigurationRecord, error) {
	if len(data) < 11 {
		return nil, fmt.Errorf("avc config record: %d bytes is too short", len(data))
	}

	r := bytes.NewReader(data)
	record := &AVCDecoderConfigurationRecord{}

	var err error
	if record.ConfigurationVersion, err = readU8(r, "configuration_version"); err != nil {
		return nil, err
	}
	if record.AVCProfileIndication, err = readU8(r, "profile_indication"); err != nil {
		return nil, err
	}
	if record.ProfileCompatibility, err = readU8(r, "profile_compatibility"); err != nil {
		return nil, err
	}
	if record.AVCLevelIndication, err = readU8(r, "level_indication"); err != nil {
		return nil, err
	}

	lengthSizeMinusOne, err := readU8(r, "length_size_minus_one")
	if err != nil {
		return nil, err
	}
	record.NALUnitLength = (lengthSizeMinusOne & 0x03) + 1

	numSPS, err := readU8(r, "num_sps")
	if err != nil {
		return nil, err
	}
	if record.SPS, err = readParameterSets(r, numSPS&0x1F, "sps"); err != nil {
		return nil, err
	}

	numPPS, err := readU8(r, "num_pps")
	if err != nil {
		return nil, err
	}
	if record.PPS, err = readParameterSets(r, numPPS, "pps"); err != nil {
		return nil, err
	}

	return record, nil
}

// ParseFLVVideoPacket splits an FLV video tag body into its frame-type
// classification and the AVC payload that follows. isSequenceHeader
// means avcData is an AVCDecoderConfigurationRecord, not video data.
func ParseFLVVideoPacket(data []byte) (isSequenceHeader bool, isKeyFrame bool, avcData []byte, err error) {
	const headerSize = 5 // frame-type/codec byte + packet-type byte + 3-byte composition time
	if len(data) < headerSize {
		return false, false, nil, fmt.Errorf("flv video packet: %d bytes is too short", len(data))
	}

	frameType := (data[0] >> 4) & 0x0F
	codecID := data[0] & 0x0F
	if codecID != 7 { // AVC/H.264
		return false, false, nil, fmt.Errorf("flv video packet: codec id %d is not H.264/AVC", codecID)
	}

	isKeyFrame = frameType == 1 // 2=inter, 3=disposable inter
	isSequenceHeader = data[1] == 0
	// data[2:5] is the composition-time offset (PTS - DTS); the rtmp
	// flavor derives its own PTS from the frame's own timestamp instead.
	avcData = data[headerSize:]

	return isSequenceHeader, isKeyFrame, avcData, nil
}

// PrependSPSPPSAnnexB returns frameData (already Annex-B) with every SPS
// then every PPS prepended, each preceded by a 4-byte start code — the
// shape a keyframe needs so a decoder joining mid-stream has codec
// configuration before the first slice.
func PrependSPSPPSAnnexB(frameData []byte, sps, pps [][]byte) []byte {
	startCode := []byte{0x00, 0x00, 0x00, 0x01}

	var buf bytes.Buffer
	for _, s := range sps {
		buf.Write(startCode)
		buf.Write(s)
	}
	for _, p := range pps {
		buf.Write(startCode)
		buf.Write(p)
	}
	buf.Write(frameData)
	return buf.Bytes()
}

// ConvertAVCCFrameToAnnexB rewrites an AVCC-framed NAL sequence (each
// NALU prefixed with its length) into Annex-B (start-code prefixed).
// naluLength is the prefix width negotiated by the stream's
// AVCDecoderConfigurationRecord; only the common 4-byte width is
// actually supported, matching h264.go's ConvertAVCCToAnnexB.
func ConvertAVCCFrameToAnnexB(frameData []byte, naluLength int) ([]byte, error) {
	if naluLength != 4 {
		return nil, fmt.Errorf("avc frame: unsupported NALU length prefix size %d", naluLength)
	}
	return ConvertAVCCToAnnexB(frameData)
}

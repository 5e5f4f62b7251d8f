package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"voice-todo/internal/application"
)

// EncodeWAV wraps 16-bit PCM samples in a canonical RIFF/WAVE header.
func EncodeWAV(samples []int16, format application.AudioFormat) []byte {
	var buf bytes.Buffer

	blockAlign := format.Channels * format.BitDepth / 8
	dataSize := len(samples) * 2
	fileSize := 36 + dataSize

	buf.Grow(44 + dataSize)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(format.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(format.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(format.BytesPerSecond()))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(format.BitDepth))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

var errNotWAV = errors.New("not a PCM WAV file")

// WAVDuration returns the exact playing time in seconds of a WAV file.
func WAVDuration(data []byte) (decimal.Decimal, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return decimal.Zero, errNotWAV
	}

	var byteRate uint32
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return decimal.Zero, fmt.Errorf("%w: short fmt chunk", errNotWAV)
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return decimal.Zero, fmt.Errorf("%w: data before fmt", errNotWAV)
			}
			// streamed files often carry a placeholder size
			if size < 0 || body+size > len(data) {
				size = len(data) - body
			}
			return decimal.NewFromInt(int64(size)).Div(decimal.NewFromInt(int64(byteRate))), nil
		}

		pos = body + size + size%2
	}

	return decimal.Zero, fmt.Errorf("%w: no data chunk", errNotWAV)
}

package shares

import (
	"encoding/binary"
	"io"
	"os"
	"strings"
)

// probeAudio sniffs audio metadata from a file header. Probing is
// opportunistic: any parse failure returns nil and the file stays in the
// catalog without metadata.
func probeAudio(path, extension string) *AudioProperties {
	switch strings.ToLower(extension) {
	case "mp3":
		return probeMP3(path)
	case "flac":
		return probeFLAC(path)
	case "wav":
		return probeWAV(path)
	default:
		return nil
	}
}

var mp3BitRates = [...]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
var mp3SampleRates = [...]int{44100, 48000, 32000, 0}

// probeMP3 scans the first 64 KiB for an MPEG-1 Layer III frame header and
// derives nominal bitrate, sample rate, and duration. A following frame with
// a different bitrate marks the file VBR.
func probeMP3(path string) *AudioProperties {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	buf := make([]byte, 64*1024)
	n, _ := io.ReadFull(f, buf)
	buf = buf[:n]

	start := 0
	// Skip an ID3v2 tag when present.
	if len(buf) >= 10 && string(buf[:3]) == "ID3" {
		size := int(buf[6]&0x7f)<<21 | int(buf[7]&0x7f)<<14 | int(buf[8]&0x7f)<<7 | int(buf[9]&0x7f)
		start = 10 + size
	}

	firstBitRate := 0
	var props *AudioProperties
	for i := start; i+4 <= len(buf); i++ {
		if buf[i] != 0xff || buf[i+1]&0xe0 != 0xe0 {
			continue
		}
		// MPEG-1 Layer III only.
		if buf[i+1]&0x18 != 0x18 || buf[i+1]&0x06 != 0x02 {
			continue
		}
		bitRate := mp3BitRates[buf[i+2]>>4]
		sampleRate := mp3SampleRates[(buf[i+2]>>2)&0x03]
		if bitRate == 0 || sampleRate == 0 {
			continue
		}

		if props == nil {
			firstBitRate = bitRate
			props = &AudioProperties{BitRate: bitRate, SampleRate: sampleRate}
			if st, err := f.Stat(); err == nil {
				props.DurationSecs = int(st.Size() * 8 / int64(bitRate*1000))
			}
			// Jump roughly one frame ahead to sample a second header.
			frameLen := 144*bitRate*1000/sampleRate - 1
			i += frameLen
			continue
		}
		if bitRate != firstBitRate {
			props.VariableBitRate = true
		}
		break
	}
	return props
}

// probeFLAC reads the mandatory STREAMINFO block.
func probeFLAC(path string) *AudioProperties {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	header := make([]byte, 4+4+34)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil
	}
	if string(header[:4]) != "fLaC" || header[4]&0x7f != 0 {
		return nil
	}

	info := header[8:]
	sampleRate := int(info[10])<<12 | int(info[11])<<4 | int(info[12])>>4
	totalSamples := uint64(info[13]&0x0f)<<32 | uint64(binary.BigEndian.Uint32(info[14:18]))
	if sampleRate == 0 {
		return nil
	}

	props := &AudioProperties{SampleRate: sampleRate, VariableBitRate: true}
	if totalSamples > 0 {
		props.DurationSecs = int(totalSamples / uint64(sampleRate))
		if st, err := f.Stat(); err == nil && props.DurationSecs > 0 {
			props.BitRate = int(st.Size() * 8 / int64(props.DurationSecs) / 1000)
		}
	}
	return props
}

// probeWAV reads the fmt chunk of a RIFF/WAVE file.
func probeWAV(path string) *AudioProperties {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil
	}

	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(f, chunk); err != nil {
			return nil
		}
		size := binary.LittleEndian.Uint32(chunk[4:8])
		if string(chunk[:4]) != "fmt " {
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil
			}
			continue
		}

		fmtData := make([]byte, size)
		if _, err := io.ReadFull(f, fmtData); err != nil || size < 16 {
			return nil
		}
		sampleRate := int(binary.LittleEndian.Uint32(fmtData[4:8]))
		byteRate := int(binary.LittleEndian.Uint32(fmtData[8:12]))
		if sampleRate == 0 || byteRate == 0 {
			return nil
		}
		props := &AudioProperties{
			SampleRate: sampleRate,
			BitRate:    byteRate * 8 / 1000,
		}
		if st, err := f.Stat(); err == nil {
			props.DurationSecs = int(st.Size() / int64(byteRate))
		}
		return props
	}
}

package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"vidproc/internal/media"
)

// WAVFramesPerSample is the number of PCM frames served per sample.
const WAVFramesPerSample = 1024

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAV serves 16-bit PCM from a RIFF/WAVE file in fixed-size samples.
type WAV struct {
	file        *os.File
	format      media.Format
	dataOffset  int64
	blockAlign  int
	totalFrames int64
	frame       int64
	selected    bool
}

func newWAV(file *os.File) (*WAV, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	fileSize := info.Size()

	var (
		haveFmt              bool
		channels, rate, bits int
		blockAlign           int
		dataOffset, dataSize int64 = -1, 0
	)
	offset := int64(12)
	header := make([]byte, 8)
	for offset+8 <= fileSize {
		if _, err := file.ReadAt(header, offset); err != nil {
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(header[0:4])
		size := int64(binary.LittleEndian.Uint32(header[4:8]))
		body := offset + 8
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d", size)
			}
			fmtChunk := make([]byte, 16)
			if _, err := file.ReadAt(fmtChunk, body); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			tag := binary.LittleEndian.Uint16(fmtChunk[0:2])
			if tag != wavFormatPCM && tag != wavFormatExtensible {
				return nil, fmt.Errorf("unsupported wav encoding 0x%04x", tag)
			}
			channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			rate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			blockAlign = int(binary.LittleEndian.Uint16(fmtChunk[12:14]))
			bits = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
			haveFmt = true
		case "data":
			dataOffset = body
			dataSize = size
			// Streaming writers leave the size unset.
			if dataSize == 0xFFFFFFFF || body+dataSize > fileSize {
				dataSize = fileSize - body
			}
		}
		if haveFmt && dataOffset >= 0 {
			break
		}
		offset = body + size + size%2
	}

	switch {
	case !haveFmt:
		return nil, errors.New("missing fmt chunk")
	case dataOffset < 0:
		return nil, errors.New("missing data chunk")
	case bits != 16:
		return nil, fmt.Errorf("unsupported bits per sample %d", bits)
	case channels <= 0 || rate <= 0:
		return nil, fmt.Errorf("invalid wav format: %d channels at %d Hz", channels, rate)
	}
	if blockAlign != channels*2 {
		blockAlign = channels * 2
	}

	totalFrames := dataSize / int64(blockAlign)
	return &WAV{
		file: file,
		format: media.Format{
			MIME:         media.MIMEAudioRaw,
			SampleRate:   rate,
			ChannelCount: channels,
			BitRate:      rate * channels * bits,
			DurationUs:   totalFrames * 1_000_000 / int64(rate),
			PCMEncoding:  media.PCM16Bit,
			MaxInputSize: WAVFramesPerSample * blockAlign,
		},
		dataOffset:  dataOffset,
		blockAlign:  blockAlign,
		totalFrames: totalFrames,
	}, nil
}

func (w *WAV) TrackCount() int { return 1 }

func (w *WAV) TrackFormat(index int) (media.Format, error) {
	if index != 0 {
		return media.Format{}, fmt.Errorf("track %d out of range", index)
	}
	return w.format, nil
}

func (w *WAV) SelectTrack(index int) error {
	if index != 0 {
		return fmt.Errorf("track %d out of range", index)
	}
	w.selected = true
	w.frame = 0
	return nil
}

func (w *WAV) framesAvailable() int64 {
	return min(WAVFramesPerSample, w.totalFrames-w.frame)
}

func (w *WAV) ReadSampleData(buf []byte) (int, error) {
	if !w.selected {
		return 0, ErrNoTrackSelected
	}
	frames := w.framesAvailable()
	if frames <= 0 {
		return 0, io.EOF
	}
	size := int(frames) * w.blockAlign
	if len(buf) < size {
		return 0, io.ErrShortBuffer
	}
	n, err := w.file.ReadAt(buf[:size], w.dataOffset+w.frame*int64(w.blockAlign))
	if err != nil && !(errors.Is(err, io.EOF) && n == size) {
		return n, fmt.Errorf("read wav data: %w", err)
	}
	return n, nil
}

func (w *WAV) SampleTime() int64 {
	if !w.selected || w.framesAvailable() <= 0 {
		return -1
	}
	return w.frame * 1_000_000 / int64(w.format.SampleRate)
}

func (w *WAV) SampleFlags() media.BufferFlag {
	if !w.selected || w.framesAvailable() <= 0 {
		return 0
	}
	return media.FlagKeyFrame
}

func (w *WAV) Advance() bool {
	if !w.selected {
		return false
	}
	w.frame = min(w.frame+WAVFramesPerSample, w.totalFrames)
	return w.frame < w.totalFrames
}

func (w *WAV) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

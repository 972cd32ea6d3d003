package codec

import (
	"fmt"
	"time"

	"vidproc/internal/media"
)

// PassthroughMIME is the raw PCM type decoded by Passthrough.
const PassthroughMIME = media.MIMEAudioRaw

const defaultPassthroughSlots = 4

type slotState int

const (
	slotFree slotState = iota
	slotInput
	slotPending
	slotOutput
)

// Passthrough is an in-process decoder for raw PCM. Every queued input buffer
// reappears unchanged as an output buffer in queue order. It never blocks.
type Passthrough struct {
	slots      int
	format     media.Format
	configured bool
	started    bool
	eosQueued  bool

	bufs    [][]byte
	state   []slotState
	infos   []media.BufferInfo
	pending []int

	formatReported bool
}

// NewPassthrough returns a passthrough codec with the given number of buffer
// slots (4 when slots <= 0).
func NewPassthrough(slots int) *Passthrough {
	if slots <= 0 {
		slots = defaultPassthroughSlots
	}
	return &Passthrough{slots: slots}
}

func (p *Passthrough) Configure(format media.Format, mode Mode) error {
	if p.started {
		return fmt.Errorf("%w: configure after start", ErrState)
	}
	if mode != ModeDecode {
		return fmt.Errorf("%w: passthrough only decodes", ErrState)
	}
	if format.SampleRate <= 0 || format.ChannelCount <= 0 {
		return fmt.Errorf("%w: passthrough needs sample rate and channels", ErrState)
	}
	size := format.MaxInputSize
	if size <= 0 {
		size = 1 << 16
	}
	p.format = media.Format{
		MIME:         PassthroughMIME,
		SampleRate:   format.SampleRate,
		ChannelCount: format.ChannelCount,
		DurationUs:   format.DurationUs,
		PCMEncoding:  media.PCM16Bit,
		MaxInputSize: size,
	}
	p.bufs = make([][]byte, p.slots)
	for i := range p.bufs {
		p.bufs[i] = make([]byte, size)
	}
	p.state = make([]slotState, p.slots)
	p.infos = make([]media.BufferInfo, p.slots)
	p.configured = true
	return nil
}

func (p *Passthrough) Start() error {
	if !p.configured {
		return fmt.Errorf("%w: start before configure", ErrState)
	}
	p.started = true
	return nil
}

func (p *Passthrough) DequeueInputBuffer(time.Duration) (int, bool, error) {
	if !p.started {
		return 0, false, fmt.Errorf("%w: not started", ErrState)
	}
	if p.eosQueued {
		return 0, false, nil
	}
	for i, s := range p.state {
		if s == slotFree {
			p.state[i] = slotInput
			return i, true, nil
		}
	}
	return 0, false, nil
}

func (p *Passthrough) InputBuffer(index int) ([]byte, error) {
	if err := p.check(index, slotInput); err != nil {
		return nil, err
	}
	return p.bufs[index], nil
}

func (p *Passthrough) QueueInputBuffer(index int, info media.BufferInfo) error {
	if err := p.check(index, slotInput); err != nil {
		return err
	}
	if p.eosQueued {
		return ErrInputClosed
	}
	if info.Offset < 0 || info.Size < 0 || info.Offset+info.Size > len(p.bufs[index]) {
		return fmt.Errorf("%w: range %d+%d exceeds buffer", ErrBufferIndex, info.Offset, info.Size)
	}
	p.state[index] = slotPending
	p.infos[index] = info
	p.pending = append(p.pending, index)
	if info.EndOfStream() {
		p.eosQueued = true
	}
	return nil
}

func (p *Passthrough) DequeueOutputBuffer(time.Duration) (Output, error) {
	if !p.started {
		return Output{}, fmt.Errorf("%w: not started", ErrState)
	}
	if !p.formatReported {
		p.formatReported = true
		return Output{Kind: OutputFormatChanged}, nil
	}
	if len(p.pending) == 0 {
		return Output{Kind: OutputEmpty}, nil
	}
	idx := p.pending[0]
	p.pending = p.pending[1:]
	p.state[idx] = slotOutput
	return Output{Kind: OutputReady, Index: idx, Info: p.infos[idx]}, nil
}

func (p *Passthrough) OutputBuffer(index int) ([]byte, error) {
	if err := p.check(index, slotOutput); err != nil {
		return nil, err
	}
	return p.bufs[index], nil
}

func (p *Passthrough) ReleaseOutputBuffer(index int) error {
	if err := p.check(index, slotOutput); err != nil {
		return err
	}
	p.state[index] = slotFree
	return nil
}

func (p *Passthrough) OutputFormat() media.Format {
	return p.format
}

func (p *Passthrough) Stop() error {
	p.started = false
	return nil
}

func (p *Passthrough) Release() error {
	p.started = false
	p.configured = false
	p.bufs = nil
	p.state = nil
	p.pending = nil
	return nil
}

func (p *Passthrough) check(index int, want slotState) error {
	if index < 0 || index >= len(p.state) || p.state[index] != want {
		return fmt.Errorf("%w: %d", ErrBufferIndex, index)
	}
	return nil
}

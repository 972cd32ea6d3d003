package ffcodec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"vidproc/internal/codec"
	"vidproc/internal/logging"
	"vidproc/internal/media"
)

const (
	defaultBinary       = "ffmpeg"
	defaultBufferCount  = 4
	defaultMaxInputSize = 1 << 20
	readChunkSize       = 64 << 10
	stderrTailSize      = 4 << 10
)

// Settings configures the ffmpeg processes behind every codec.
type Settings struct {
	Binary       string
	BufferCount  int
	MaxInputSize int
	Preset       string
	Logger       *slog.Logger
}

func (s Settings) withDefaults() Settings {
	if strings.TrimSpace(s.Binary) == "" {
		s.Binary = defaultBinary
	}
	if s.BufferCount <= 0 {
		s.BufferCount = defaultBufferCount
	}
	if s.MaxInputSize <= 0 {
		s.MaxInputSize = defaultMaxInputSize
	}
	if s.Preset == "" {
		s.Preset = "veryfast"
	}
	return s
}

// prelude starts every ffmpeg command line.
func prelude() []string {
	return []string{"-hide_banner", "-loglevel", "error"}
}

// unit is one output buffer recovered from the process's stdout.
type unit struct {
	data     []byte
	keyFrame bool
	format   *media.Format
}

// splitter cuts a byte stream into output units.
type splitter interface {
	Push(data []byte) ([]unit, error)
	Flush() ([]unit, error)
}

type item struct {
	data   []byte
	info   media.BufferInfo
	format *media.Format
	err    error
}

type write struct {
	slot int
	data []byte
	eos  bool
}

// pipeCodec runs one ffmpeg process per Start and adapts it to codec.Codec.
type pipeCodec struct {
	name     string
	settings Settings
	logger   *slog.Logger
	splitter splitter

	// args builds the ffmpeg arguments once the codec is configured.
	args func() []string
	// prepare converts an input payload into the bytes written to stdin.
	prepare func(payload []byte, info media.BufferInfo) ([]byte, error)
	// stamp assigns a presentation time to an output unit.
	stamp func(u unit) int64
	// eosTime is the presentation time carried by the end-of-stream buffer.
	eosTime func() int64

	mu         sync.Mutex
	configured bool
	started    bool
	eosQueued  bool
	format     media.Format
	slotSize   int
	inputs     [][]byte
	held       map[int]bool
	free       chan int
	writes     chan write
	ready      []item
	signal     chan struct{}
	outputs    map[int]item
	nextOut    int
	eosSeen    bool
	stdinDone  bool

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newPipeCodec(name string, settings Settings, s splitter) *pipeCodec {
	settings = settings.withDefaults()
	return &pipeCodec{
		name:     name,
		settings: settings,
		logger:   logging.NewComponentLogger(settings.Logger, "ffcodec").With(logging.String("codec", name)),
		splitter: s,
		slotSize: settings.MaxInputSize,
	}
}

func (p *pipeCodec) markConfigured(slotSize int) {
	if slotSize > 0 {
		p.slotSize = slotSize
	}
	p.configured = true
}

func (p *pipeCodec) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configured {
		return fmt.Errorf("%w: %s start before configure", codec.ErrState, p.name)
	}
	if p.started {
		return fmt.Errorf("%w: %s already started", codec.ErrState, p.name)
	}

	slots := p.settings.BufferCount
	p.inputs = make([][]byte, slots)
	p.held = map[int]bool{}
	p.free = make(chan int, slots)
	for i := range slots {
		p.inputs[i] = make([]byte, p.slotSize)
		p.free <- i
	}
	p.writes = make(chan write, slots)
	p.signal = make(chan struct{}, 1)
	p.outputs = map[int]item{}

	ctx, cancel := context.WithCancel(context.Background())
	args := p.args()
	cmd := exec.CommandContext(ctx, p.settings.Binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%s stdin: %w", p.name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%s stdout: %w", p.name, err)
	}
	p.stderr = &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = p.stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", p.settings.Binary, err)
	}
	p.logger.Debug("codec process started",
		logging.String("binary", p.settings.Binary),
		logging.String("args", strings.Join(args, " ")),
	)
	p.cmd = cmd
	p.stdin = stdin
	p.cancel = cancel
	p.started = true

	p.wg.Add(2)
	go p.writeLoop(p.writes, stdin)
	go p.readLoop(stdout)
	return nil
}

func (p *pipeCodec) writeLoop(writes <-chan write, stdin io.WriteCloser) {
	defer p.wg.Done()
	var failed error
	for w := range writes {
		if failed == nil && len(w.data) > 0 {
			if _, err := stdin.Write(w.data); err != nil {
				failed = err
				p.logger.Debug("codec stdin write failed", logging.Error(err))
			}
		}
		if w.slot >= 0 {
			p.free <- w.slot
		}
		if w.eos {
			_ = stdin.Close()
			return
		}
	}
	_ = stdin.Close()
}

func (p *pipeCodec) readLoop(stdout io.Reader) {
	defer p.wg.Done()
	buf := make([]byte, readChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			units, perr := p.splitter.Push(buf[:n])
			p.publish(units)
			if perr != nil {
				p.fail(fmt.Errorf("%s output: %w", p.name, perr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.fail(fmt.Errorf("%s read: %w", p.name, err))
				return
			}
			break
		}
	}
	units, err := p.splitter.Flush()
	p.publish(units)
	if err != nil {
		p.fail(fmt.Errorf("%s output: %w", p.name, err))
		return
	}
	if err := p.cmd.Wait(); err != nil {
		p.fail(fmt.Errorf("%s exited: %w: %s", p.settings.Binary, err, p.stderr.String()))
		return
	}
	p.mu.Lock()
	p.ready = append(p.ready, item{info: media.BufferInfo{Flags: media.FlagEndOfStream, PresentationTimeUs: p.eosTime()}})
	p.mu.Unlock()
	p.notify()
}

func (p *pipeCodec) publish(units []unit) {
	if len(units) == 0 {
		return
	}
	p.mu.Lock()
	for _, u := range units {
		if u.format != nil {
			p.ready = append(p.ready, item{format: u.format})
		}
		if len(u.data) == 0 {
			continue
		}
		var flags media.BufferFlag
		if u.keyFrame {
			flags |= media.FlagKeyFrame
		}
		p.ready = append(p.ready, item{
			data: u.data,
			info: media.BufferInfo{Size: len(u.data), PresentationTimeUs: p.stamp(u), Flags: flags},
		})
	}
	p.mu.Unlock()
	p.notify()
}

func (p *pipeCodec) fail(err error) {
	p.mu.Lock()
	p.ready = append(p.ready, item{err: err})
	p.mu.Unlock()
	p.notify()
}

func (p *pipeCodec) notify() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *pipeCodec) pendingOutputs() int {
	n := 0
	for _, it := range p.ready {
		if it.format == nil && it.err == nil {
			n++
		}
	}
	return n + len(p.outputs)
}

func (p *pipeCodec) DequeueInputBuffer(timeout time.Duration) (int, bool, error) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return 0, false, fmt.Errorf("%w: %s not started", codec.ErrState, p.name)
	}
	if p.eosQueued || p.pendingOutputs() >= p.settings.BufferCount {
		p.mu.Unlock()
		return 0, false, nil
	}
	free := p.free
	p.mu.Unlock()

	var slot int
	select {
	case slot = <-free:
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case slot = <-free:
		case <-timer.C:
			return 0, false, nil
		}
	}
	p.mu.Lock()
	p.held[slot] = true
	p.mu.Unlock()
	return slot, true, nil
}

func (p *pipeCodec) InputBuffer(index int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.held[index] {
		return nil, fmt.Errorf("%w: input %d", codec.ErrBufferIndex, index)
	}
	return p.inputs[index], nil
}

func (p *pipeCodec) QueueInputBuffer(index int, info media.BufferInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.held[index] {
		return fmt.Errorf("%w: input %d", codec.ErrBufferIndex, index)
	}
	if p.eosQueued {
		return codec.ErrInputClosed
	}
	payload := codec.Payload(p.inputs[index], info)
	data, err := p.prepare(payload, info)
	if err != nil {
		return fmt.Errorf("%s input: %w", p.name, err)
	}
	delete(p.held, index)
	eos := info.EndOfStream()
	if eos {
		p.eosQueued = true
	}
	p.writes <- write{slot: index, data: data, eos: eos}
	return nil
}

// submit queues bytes that do not come from an input slot. It blocks while
// the writer is behind.
func (p *pipeCodec) submit(data []byte, eos bool) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s not started", codec.ErrState, p.name)
	}
	if p.eosQueued {
		p.mu.Unlock()
		return codec.ErrInputClosed
	}
	if eos {
		p.eosQueued = true
	}
	writes := p.writes
	p.mu.Unlock()
	writes <- write{slot: -1, data: data, eos: eos}
	return nil
}

func (p *pipeCodec) DequeueOutputBuffer(timeout time.Duration) (codec.Output, error) {
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		if !p.started {
			p.mu.Unlock()
			return codec.Output{}, fmt.Errorf("%w: %s not started", codec.ErrState, p.name)
		}
		if len(p.ready) > 0 {
			it := p.ready[0]
			p.ready = p.ready[1:]
			out, err := p.handOut(it)
			p.mu.Unlock()
			return out, err
		}
		signal := p.signal
		p.mu.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			return codec.Output{Kind: codec.OutputEmpty}, nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-signal:
			timer.Stop()
		case <-timer.C:
			return codec.Output{Kind: codec.OutputEmpty}, nil
		}
	}
}

func (p *pipeCodec) handOut(it item) (codec.Output, error) {
	switch {
	case it.err != nil:
		return codec.Output{}, it.err
	case it.format != nil:
		p.format = it.format.Clone()
		return codec.Output{Kind: codec.OutputFormatChanged}, nil
	}
	idx := p.nextOut
	p.nextOut++
	p.outputs[idx] = it
	if it.info.EndOfStream() {
		p.eosSeen = true
	}
	return codec.Output{Kind: codec.OutputReady, Index: idx, Info: it.info}, nil
}

func (p *pipeCodec) OutputBuffer(index int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it, ok := p.outputs[index]
	if !ok {
		return nil, fmt.Errorf("%w: output %d", codec.ErrBufferIndex, index)
	}
	return it.data, nil
}

func (p *pipeCodec) ReleaseOutputBuffer(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.outputs[index]; !ok {
		return fmt.Errorf("%w: output %d", codec.ErrBufferIndex, index)
	}
	delete(p.outputs, index)
	return nil
}

func (p *pipeCodec) OutputFormat() media.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format.Clone()
}

// Stop ends the process. A process that has not delivered end of stream is
// killed.
func (p *pipeCodec) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	finished := p.eosSeen
	if !p.eosQueued {
		p.eosQueued = true
		close(p.writes)
	}
	cancel := p.cancel
	p.mu.Unlock()

	if !finished {
		cancel()
	}
	p.wg.Wait()
	cancel()
	p.logger.Debug("codec process stopped", logging.Bool("completed", finished))
	return nil
}

func (p *pipeCodec) Release() error {
	err := p.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = nil
	p.outputs = nil
	p.ready = nil
	p.configured = false
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

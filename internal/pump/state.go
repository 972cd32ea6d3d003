package pump

// State is the pipeline state advanced by Step.
type State int

const (
	StateFeeding State = iota
	StateDrainEncoder
	StateDrainDecoder
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateFeeding:
		return "feeding"
	case StateDrainEncoder:
		return "drain_encoder"
	case StateDrainDecoder:
		return "drain_decoder"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Progress holds the monotonic completion flags of one run. Each flag is set
// once and never cleared; OutputEncoded implies InputDecoded implies
// InputExtracted.
type Progress struct {
	InputExtracted bool
	InputDecoded   bool
	OutputEncoded  bool
}

// Stats counts the buffers moved by one run.
type Stats struct {
	SamplesRead    int
	FramesDecoded  int
	SamplesWritten int
	FadedBuffers   int
	BytesWritten   int64
}

// pass tracks which codec reported an empty output queue during the current
// drain pass. A pass ends when both did.
type pass struct {
	encoderEmpty bool
	decoderEmpty bool
}

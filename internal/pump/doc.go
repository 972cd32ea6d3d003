// Package pump drives a decoder and an encoder against a sample source and a
// muxer. The audio pipeline is an explicit state machine (Feeding,
// DrainEncoder, DrainDecoder, Finished) advanced one step at a time; the
// surface pipeline reuses the encoder drain without a decoder.
//
// Encoder output is always drained before decoder output is pulled. Both
// codecs share a small buffer pool, and pulling decoded frames while encoded
// output piles up starves the encoder of input slots.
package pump

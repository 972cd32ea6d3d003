package testsupport

// H264PPS is a minimal baseline picture parameter set.
var H264PPS = []byte{0x68, 0xce, 0x38, 0x80}

// H264SPS builds a baseline-profile sequence parameter set describing a
// width x height picture. Both dimensions must be multiples of 16.
func H264SPS(width, height int) []byte {
	var w bitWriter
	w.bits(0x67, 8) // forbidden_zero_bit, nal_ref_idc=3, nal_unit_type=7
	w.bits(66, 8)   // profile_idc: baseline
	w.bits(0xc0, 8) // constraint flags
	w.bits(30, 8)   // level_idc
	w.ue(0)         // seq_parameter_set_id
	w.ue(0)         // log2_max_frame_num_minus4
	w.ue(2)         // pic_order_cnt_type
	w.ue(1)         // max_num_ref_frames
	w.bits(0, 1)    // gaps_in_frame_num_value_allowed_flag
	w.ue(uint32(width/16 - 1))
	w.ue(uint32(height/16 - 1))
	w.bits(1, 1) // frame_mbs_only_flag
	w.bits(1, 1) // direct_8x8_inference_flag
	w.bits(0, 1) // frame_cropping_flag
	w.bits(0, 1) // vui_parameters_present_flag
	w.bits(1, 1) // rbsp_stop_one_bit
	return w.bytes()
}

type bitWriter struct {
	buf  []byte
	nbit int
}

func (w *bitWriter) bits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.nbit%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 == 1 {
			w.buf[len(w.buf)-1] |= 1 << uint(7-w.nbit%8)
		}
		w.nbit++
	}
}

func (w *bitWriter) ue(v uint32) {
	v++
	n := 0
	for tmp := v; tmp > 1; tmp >>= 1 {
		n++
	}
	w.bits(0, n)
	w.bits(v, n+1)
}

func (w *bitWriter) bytes() []byte {
	return w.buf
}

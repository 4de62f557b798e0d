//go:build uhd

package sdr

/*
#cgo LDFLAGS: -luhd
#include <stdlib.h>
#include <uhd.h>

static uhd_error send_one(uhd_tx_streamer_handle h, void *buf, size_t n,
		uhd_tx_metadata_handle *md, double timeout, size_t *sent) {
	const void *buffs[1] = { buf };
	return uhd_tx_streamer_send(h, buffs, n, md, timeout, sent);
}

static uhd_error recv_one(uhd_rx_streamer_handle h, void *buf, size_t n,
		uhd_rx_metadata_handle *md, double timeout, size_t *got) {
	void *buffs[1] = { buf };
	return uhd_rx_streamer_recv(h, buffs, n, md, timeout, false, got);
}
*/
import "C"

import (
	"fmt"
	"math"
	"sync"
	"unsafe"
)

const (
	recvTimeout = 0.1 // Seconds
	sendTimeout = 1.0
	mboard      = 0
)

// UHD drives a USRP through libuhd.
type UHD struct {
	mu     sync.Mutex
	handle C.uhd_usrp_handle
	closed bool
}

// Ensure UHD implements Radio.
var _ Radio = (*UHD)(nil)

// OpenUHD opens the first device matching args, e.g. "type=b200".
func OpenUHD(args string) (Radio, error) {
	cargs := C.CString(args)
	defer C.free(unsafe.Pointer(cargs))

	u := &UHD{}
	if err := check(C.uhd_usrp_make(&u.handle, cargs)); err != nil {
		return nil, fmt.Errorf("failed to open USRP %q: %w", args, err)
	}
	return u, nil
}

func check(code C.uhd_error) error {
	if code == C.UHD_ERROR_NONE {
		return nil
	}
	var buf [512]C.char
	C.uhd_get_last_error(&buf[0], C.size_t(len(buf)))
	return fmt.Errorf("uhd error %d: %s", int(code), C.GoString(&buf[0]))
}

func splitTime(t float64) (C.int64_t, C.double) {
	full, frac := math.Modf(t)
	return C.int64_t(full), C.double(frac)
}

func tuneRequest(freq float64) C.uhd_tune_request_t {
	return C.uhd_tune_request_t{
		target_freq:     C.double(freq),
		rf_freq_policy:  C.UHD_TUNE_REQUEST_POLICY_AUTO,
		dsp_freq_policy: C.UHD_TUNE_REQUEST_POLICY_AUTO,
	}
}

func (u *UHD) SetTxRate(ch int, rate float64) error {
	return check(C.uhd_usrp_set_tx_rate(u.handle, C.double(rate), C.size_t(ch)))
}

func (u *UHD) SetRxRate(ch int, rate float64) error {
	return check(C.uhd_usrp_set_rx_rate(u.handle, C.double(rate), C.size_t(ch)))
}

func (u *UHD) SetTxFreq(ch int, freq float64) error {
	req := tuneRequest(freq)
	var res C.uhd_tune_result_t
	return check(C.uhd_usrp_set_tx_freq(u.handle, &req, C.size_t(ch), &res))
}

func (u *UHD) SetRxFreq(ch int, freq float64) error {
	req := tuneRequest(freq)
	var res C.uhd_tune_result_t
	return check(C.uhd_usrp_set_rx_freq(u.handle, &req, C.size_t(ch), &res))
}

func (u *UHD) SetTxGain(ch int, gain float64) error {
	name := C.CString("")
	defer C.free(unsafe.Pointer(name))
	return check(C.uhd_usrp_set_tx_gain(u.handle, C.double(gain), C.size_t(ch), name))
}

func (u *UHD) SetRxGain(ch int, gain float64) error {
	name := C.CString("")
	defer C.free(unsafe.Pointer(name))
	return check(C.uhd_usrp_set_rx_gain(u.handle, C.double(gain), C.size_t(ch), name))
}

func (u *UHD) SetTimeNow(t float64) error {
	full, frac := splitTime(t)
	return check(C.uhd_usrp_set_time_now(u.handle, full, frac, mboard))
}

func (u *UHD) SetCommandTime(t float64) error {
	full, frac := splitTime(t)
	return check(C.uhd_usrp_set_command_time(u.handle, full, frac, mboard))
}

func (u *UHD) ClearCommandTime() error {
	return check(C.uhd_usrp_clear_command_time(u.handle, mboard))
}

func (u *UHD) SetGPIOAttr(bank, attr string, value, mask uint32) error {
	cbank := C.CString(bank)
	defer C.free(unsafe.Pointer(cbank))
	cattr := C.CString(attr)
	defer C.free(unsafe.Pointer(cattr))
	return check(C.uhd_usrp_set_gpio_attr(u.handle, cbank, cattr, C.uint32_t(value), C.uint32_t(mask), mboard))
}

// streamArgs builds fc32 host / sc16 wire arguments for one channel. The
// returned release function frees the C allocations.
func streamArgs(ch int) (*C.uhd_stream_args_t, func()) {
	args := (*C.uhd_stream_args_t)(C.calloc(1, C.size_t(unsafe.Sizeof(C.uhd_stream_args_t{}))))
	chans := (*C.size_t)(C.malloc(C.size_t(unsafe.Sizeof(C.size_t(0)))))
	*chans = C.size_t(ch)

	args.cpu_format = C.CString("fc32")
	args.otw_format = C.CString("sc16")
	args.args = C.CString("")
	args.channel_list = chans
	args.n_channels = 1

	return args, func() {
		C.free(unsafe.Pointer(args.cpu_format))
		C.free(unsafe.Pointer(args.otw_format))
		C.free(unsafe.Pointer(args.args))
		C.free(unsafe.Pointer(chans))
		C.free(unsafe.Pointer(args))
	}
}

func (u *UHD) TxStream(ch int) (TxStreamer, error) {
	args, release := streamArgs(ch)
	defer release()

	s := &uhdTx{}
	if err := check(C.uhd_tx_streamer_make(&s.handle)); err != nil {
		return nil, err
	}
	if err := check(C.uhd_usrp_get_tx_stream(u.handle, args, s.handle)); err != nil {
		C.uhd_tx_streamer_free(&s.handle)
		return nil, fmt.Errorf("failed to get tx stream: %w", err)
	}
	return s, nil
}

func (u *UHD) RxStream(ch int) (RxStreamer, error) {
	args, release := streamArgs(ch)
	defer release()

	s := &uhdRx{}
	if err := check(C.uhd_rx_streamer_make(&s.handle)); err != nil {
		return nil, err
	}
	if err := check(C.uhd_usrp_get_rx_stream(u.handle, args, s.handle)); err != nil {
		C.uhd_rx_streamer_free(&s.handle)
		return nil, fmt.Errorf("failed to get rx stream: %w", err)
	}
	if err := check(C.uhd_rx_metadata_make(&s.md)); err != nil {
		C.uhd_rx_streamer_free(&s.handle)
		return nil, err
	}
	return s, nil
}

func (u *UHD) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	return check(C.uhd_usrp_free(&u.handle))
}

type uhdTx struct {
	handle C.uhd_tx_streamer_handle
}

func (s *uhdTx) Send(samples []complex64, md TxMetadata) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	size := C.size_t(len(samples)) * C.size_t(unsafe.Sizeof(complex64(0)))
	buf := C.malloc(size)
	defer C.free(buf)
	copy(unsafe.Slice((*complex64)(buf), len(samples)), samples)

	full, frac := splitTime(md.Time)
	var cmd C.uhd_tx_metadata_handle
	if err := check(C.uhd_tx_metadata_make(&cmd, C.bool(md.HasTime), full, frac,
		C.bool(md.StartOfBurst), C.bool(md.EndOfBurst))); err != nil {
		return 0, err
	}
	defer C.uhd_tx_metadata_free(&cmd)

	var sent C.size_t
	if err := check(C.send_one(s.handle, buf, C.size_t(len(samples)), &cmd, sendTimeout, &sent)); err != nil {
		return int(sent), err
	}
	return int(sent), nil
}

func (s *uhdTx) Close() error {
	return check(C.uhd_tx_streamer_free(&s.handle))
}

type uhdRx struct {
	handle C.uhd_rx_streamer_handle
	md     C.uhd_rx_metadata_handle
	buf    unsafe.Pointer
	bufLen int
}

func (s *uhdRx) IssueStreamCmd(cmd StreamCmd) error {
	full, frac := splitTime(cmd.Time)
	c := C.uhd_stream_cmd_t{
		num_samps:           C.size_t(cmd.NumSamps),
		stream_now:          C.bool(cmd.StreamNow),
		time_spec_full_secs: full,
		time_spec_frac_secs: frac,
	}
	switch cmd.Mode {
	case NumSampsAndDone:
		c.stream_mode = C.UHD_STREAM_MODE_NUM_SAMPS_AND_DONE
	case StartContinuous:
		c.stream_mode = C.UHD_STREAM_MODE_START_CONTINUOUS
	case StopContinuous:
		c.stream_mode = C.UHD_STREAM_MODE_STOP_CONTINUOUS
	}
	return check(C.uhd_rx_streamer_issue_stream_cmd(s.handle, &c))
}

// Recv reads into a C buffer and copies out; a receive timeout yields zero samples.
func (s *uhdRx) Recv(buf []complex64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if s.bufLen < len(buf) {
		if s.buf != nil {
			C.free(s.buf)
		}
		s.buf = C.malloc(C.size_t(len(buf)) * C.size_t(unsafe.Sizeof(complex64(0))))
		s.bufLen = len(buf)
	}

	var got C.size_t
	if err := check(C.recv_one(s.handle, s.buf, C.size_t(len(buf)), &s.md, recvTimeout, &got)); err != nil {
		return 0, err
	}
	n := int(got)
	copy(buf[:n], unsafe.Slice((*complex64)(s.buf), n))
	return n, nil
}

func (s *uhdRx) Close() error {
	if s.buf != nil {
		C.free(s.buf)
		s.buf = nil
	}
	C.uhd_rx_metadata_free(&s.md)
	return check(C.uhd_rx_streamer_free(&s.handle))
}

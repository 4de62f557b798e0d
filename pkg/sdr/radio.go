// Package sdr defines the software defined radio boundary used by the
// pulse sequence engine, with a simulated spin system for development and a
// UHD binding for B200 class hardware.
package sdr

import "errors"

// ErrUnsupported is returned when the binary was built without a hardware driver.
var ErrUnsupported = errors.New("sdr: hardware driver not built in")

// ErrClosed is returned by operations on a closed radio or streamer.
var ErrClosed = errors.New("sdr: closed")

// GPIO bank and attribute names of the front panel header.
const (
	BankFP0  = "FP0"
	AttrCTRL = "CTRL"
	AttrDDR  = "DDR"
	AttrOUT  = "OUT"
)

// TxMetadata describes one transmit burst.
type TxMetadata struct {
	HasTime      bool
	Time         float64 // Device time, seconds
	StartOfBurst bool
	EndOfBurst   bool
}

// StreamMode selects how a receive stream command ends.
type StreamMode int

const (
	// NumSampsAndDone streams NumSamps samples and stops.
	NumSampsAndDone StreamMode = iota
	StartContinuous
	StopContinuous
)

// StreamCmd starts or stops receive streaming.
type StreamCmd struct {
	Mode      StreamMode
	NumSamps  int
	StreamNow bool
	Time      float64 // Device time, seconds; ignored when StreamNow
}

// TxStreamer sends sample bursts to one transmit channel.
type TxStreamer interface {
	Send(samples []complex64, md TxMetadata) (int, error)
	Close() error
}

// RxStreamer receives samples from one receive channel.
//
// Recv returns zero samples while nothing is available yet and again after a
// NumSampsAndDone command has delivered all of its samples.
type RxStreamer interface {
	IssueStreamCmd(cmd StreamCmd) error
	Recv(buf []complex64) (int, error)
	Close() error
}

// Radio is a multi-channel transceiver with timed command support.
type Radio interface {
	SetTxRate(ch int, rate float64) error
	SetRxRate(ch int, rate float64) error
	SetTxFreq(ch int, freq float64) error
	SetRxFreq(ch int, freq float64) error
	SetTxGain(ch int, gain float64) error
	SetRxGain(ch int, gain float64) error

	// TxStream and RxStream create streamers owned by the caller.
	TxStream(ch int) (TxStreamer, error)
	RxStream(ch int) (RxStreamer, error)

	// SetTimeNow resets the device clock.
	SetTimeNow(t float64) error
	// SetCommandTime delays the following register writes until device time t.
	SetCommandTime(t float64) error
	ClearCommandTime() error
	SetGPIOAttr(bank, attr string, value, mask uint32) error

	Close() error
}

package rtlsdr

import (
	"log"
	"math"
	"sync"
	"time"

	rtl "github.com/jpoirier/gortlsdr"
	"github.com/pkg/errors"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/radio"
)

const incomingCapacity = 64

// Open the RTL-SDR dongle for reading. The gain is given in dB, a negative gain selects automatic gain control.
func Open(centerFrequency core.Frequency, sampleRate int, gain float64, frequencyCorrection int) (*Dongle, error) {
	device, err := rtl.Open(0)
	if err != nil {
		return nil, radio.NewFatalError("open", radio.StatusDisconnected, err)
	}

	fail := func(op string, err error) (*Dongle, error) {
		device.Close()
		log.Printf("[ERROR] %s failed: %v", op, err)
		return nil, radio.NewFatalError(op, radio.StatusNotSupported, err)
	}

	err = device.SetSampleRate(sampleRate)
	if err != nil {
		return fail("SetSampleRate", err)
	}
	log.Printf("[INFO] sample rate: %d", device.GetSampleRate())

	err = device.SetCenterFreq(int(centerFrequency))
	if err != nil {
		return fail("SetCenterFreq", err)
	}

	if frequencyCorrection != 0 {
		err = device.SetFreqCorrection(frequencyCorrection)
		if err != nil {
			return fail("SetFreqCorrection", err)
		}
	}

	if gain < 0 {
		err = device.SetTunerGainMode(false)
	} else {
		err = device.SetTunerGainMode(true)
		if err == nil {
			err = device.SetTunerGain(int(gain * 10))
		}
	}
	if err != nil {
		return fail("SetTunerGain", err)
	}

	err = device.ResetBuffer()
	if err != nil {
		return fail("ResetBuffer", err)
	}

	result := &Dongle{
		device:    device,
		incoming:  make(chan []byte, incomingCapacity),
		asyncDone: make(chan struct{}),
		asyncRead: new(sync.WaitGroup),
	}

	result.asyncRead.Add(1)
	go func() {
		defer result.asyncRead.Done()
		defer close(result.asyncDone)
		err := result.device.ReadAsync(result.incomingData, nil, 0, 0)
		if err != nil {
			result.asyncErr = err
		}
	}()

	return result, nil
}

// Dongle represents the RTL-SDR dongle.
type Dongle struct {
	device    *rtl.Context
	incoming  chan []byte
	pending   []byte
	asyncDone chan struct{}
	asyncErr  error
	asyncRead *sync.WaitGroup
	closeOnce sync.Once
}

// ReadBlock reads the next samples from the dongle, waiting at most for the given timeout.
func (d *Dongle) ReadBlock(buf core.Block, timeout time.Duration) (int, error) {
	if len(d.pending) == 0 {
		select {
		case data := <-d.incoming:
			d.pending = data
		case <-d.asyncDone:
			return 0, radio.NewFatalError("read", radio.StatusDisconnected, errors.Wrap(d.asyncErr, "async read ended"))
		case <-time.After(timeout):
			return 0, nil
		}
	}

	n := len(d.pending) / 2
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		buf[i] = complex(normalizeSampleUint8(d.pending[2*i]), normalizeSampleUint8(d.pending[2*i+1]))
	}
	d.pending = d.pending[2*n:]
	if len(d.pending) < 2 {
		d.pending = nil
	}

	return n, nil
}

// SetCenterFrequency retunes the dongle.
func (d *Dongle) SetCenterFrequency(f core.Frequency) error {
	err := d.device.SetCenterFreq(int(f))
	if err != nil {
		return radio.NewError("tune", radio.StatusNotSupported, err)
	}
	return nil
}

// WriteBlock is not supported, the dongle has no transmit path.
func (d *Dongle) WriteBlock(core.Block, time.Duration) error {
	return radio.ErrTxUnsupported
}

// Close the dongle.
func (d *Dongle) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.device.CancelAsync()
		d.asyncRead.Wait()
		err = d.device.Close()
	})
	return err
}

func (d *Dongle) incomingData(data []byte) {
	block := make([]byte, len(data))
	copy(block, data)
	select {
	case d.incoming <- block:
	default:
		log.Print("[WARN] incoming data hangs, dropping buffer")
	}
}

func normalizeSampleUint8(s byte) float32 {
	return (float32(s) - float32(math.MaxInt8)) / float32(math.MaxInt8)
}

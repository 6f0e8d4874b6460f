/*
Package vfo follows the frequency of a rig that is controlled by hamlib's rigctld.
*/
package vfo

import (
	"context"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ftl/rigproxy/pkg/protocol"
	"github.com/pkg/errors"

	"github.com/ftl/rfheatmap/core"
)

// DefaultAddress of rigctld.
const DefaultAddress = "localhost:4532"

// Open a connection to a hamlib VFO at the given network address. If address is empty, DefaultAddress is used.
func Open(address string, pollingInterval time.Duration) (*VFO, error) {
	if address == "" {
		address = DefaultAddress
	}
	out, err := net.Dial("tcp", address)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open VFO connection")
	}

	trx := protocol.NewTransceiver(out)
	trx.WhenDone(func() {
		out.Close()
	})

	result := newVFO(pollingInterval)
	result.poll = func(ctx context.Context) (core.Frequency, error) {
		return pollFrequency(ctx, trx)
	}
	result.close = func() {
		trx.Close()
	}
	return result, nil
}

func newVFO(pollingInterval time.Duration) *VFO {
	if pollingInterval <= 0 {
		pollingInterval = 500 * time.Millisecond
	}
	return &VFO{
		pollingInterval: pollingInterval,
		frequencyLock:   new(sync.RWMutex),
		close:           func() {},
	}
}

// VFO follows the frequency of the rig.
type VFO struct {
	pollingInterval           time.Duration
	poll                      func(context.Context) (core.Frequency, error)
	close                     func()
	currentFrequency          core.Frequency
	frequencyLock             *sync.RWMutex
	frequencyChangedCallbacks []FrequencyChanged
}

// FrequencyChanged is called on frequency changes.
type FrequencyChanged func(f core.Frequency)

// Run the VFO until stop is closed. The first successful poll always reports the frequency.
func (v *VFO) Run(stop chan struct{}, wait *sync.WaitGroup) {
	wait.Add(1)
	go func() {
		defer wait.Done()
		defer v.shutdown()

		for {
			select {
			case <-time.After(v.pollingInterval):
				v.update(stop)
			case <-stop:
				return
			}
		}
	}()
}

func (v *VFO) shutdown() {
	v.close()
	log.Print("[INFO] VFO shutdown")
}

func (v *VFO) update(stop chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), v.pollingInterval)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	f, err := v.poll(ctx)
	if err != nil {
		log.Printf("[WARN] polling frequency failed: %v", err)
		return
	}

	if v.updateCurrentFrequency(f) {
		for _, frequencyChanged := range v.frequencyChangedCallbacks {
			frequencyChanged(f)
		}
	}
}

func (v *VFO) updateCurrentFrequency(f core.Frequency) bool {
	v.frequencyLock.Lock()
	defer v.frequencyLock.Unlock()
	if int(f) == int(v.currentFrequency) {
		return false
	}

	v.currentFrequency = f
	return true
}

// CurrentFrequency returns the current frequency of the VFO.
func (v *VFO) CurrentFrequency() core.Frequency {
	v.frequencyLock.RLock()
	defer v.frequencyLock.RUnlock()
	return v.currentFrequency
}

// OnFrequencyChange registers the given callback to be notified if the current frequency changes.
// Callbacks are called on the VFO's goroutine and must be registered before Run.
func (v *VFO) OnFrequencyChange(f FrequencyChanged) {
	v.frequencyChangedCallbacks = append(v.frequencyChangedCallbacks, f)
}

func pollFrequency(ctx context.Context, trx *protocol.Transceiver) (core.Frequency, error) {
	request := protocol.Request{Command: protocol.ShortCommand("f")}
	response, err := trx.Send(ctx, request)
	if err != nil {
		return 0, err
	}
	if len(response.Data) == 0 {
		return 0, errors.New("empty response")
	}
	return hamlibToF(response.Data[0])
}

func hamlibToF(s string) (core.Frequency, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "wrong frequency format %q", s)
	}
	return core.Frequency(f), nil
}

package scan

import (
	"context"
	"sync"
	"time"

	"github.com/aquaflora/stockscan/internal/decoder"
	"github.com/aquaflora/stockscan/internal/model"
)

// fakeAdapter is an in-memory decoder.Adapter that records every call and
// keeps every callback pair it was handed, so tests can fire stale callbacks.
type fakeAdapter struct {
	mu       sync.Mutex
	devices  []model.Device
	listErr  error
	openErrs map[string]error
	log      []string // "open:<id>" / "close"
	open     string
	overlap  bool
	handlers []handlerPair

	// When gate is non-nil, Open signals entered and then blocks until gate
	// is closed or, if honourCtx is set, the context is done.
	gate      chan struct{}
	entered   chan struct{}
	honourCtx bool
}

type handlerPair struct {
	device   string
	onDecode decoder.DecodeFunc
	onError  decoder.DecodeErrorFunc
}

func newFakeAdapter(devices ...model.Device) *fakeAdapter {
	return &fakeAdapter{devices: devices, openErrs: map[string]error{}}
}

func (f *fakeAdapter) ListDevices(ctx context.Context) ([]model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Device(nil), f.devices...), nil
}

func (f *fakeAdapter) Open(ctx context.Context, id string, onDecode decoder.DecodeFunc, onError decoder.DecodeErrorFunc) error {
	f.mu.Lock()
	gate, entered, honour := f.gate, f.entered, f.honourCtx
	f.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		if honour {
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			<-gate
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.openErrs[id]; err != nil {
		return err
	}
	if f.open != "" {
		f.overlap = true
		return decoder.ErrBusy
	}
	f.open = id
	f.log = append(f.log, "open:"+id)
	f.handlers = append(f.handlers, handlerPair{device: id, onDecode: onDecode, onError: onError})
	return nil
}

func (f *fakeAdapter) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open == "" {
		return nil
	}
	f.open = ""
	f.log = append(f.log, "close")
	return nil
}

// emit fires the decode callback of the most recent open.
func (f *fakeAdapter) emit(text string) {
	f.latest().onDecode(text, time.Time{})
}

func (f *fakeAdapter) emitError(err error) {
	f.latest().onError(err)
}

func (f *fakeAdapter) latest() handlerPair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[len(f.handlers)-1]
}

func (f *fakeAdapter) handler(i int) handlerPair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[i]
}

func (f *fakeAdapter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func (f *fakeAdapter) count(call string) int {
	n := 0
	for _, c := range f.calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeAdapter) opens() int {
	n := 0
	for _, c := range f.calls() {
		if len(c) > 5 && c[:5] == "open:" {
			n++
		}
	}
	return n
}

func (f *fakeAdapter) isOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open != ""
}

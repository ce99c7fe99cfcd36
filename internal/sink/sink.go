package sink

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"theta_trading/internal/models"
)

// Event is the structured record emitted on every position transition
// for external storage and analytics.
type Event struct {
	PositionID string            `json:"position_id"`
	Symbol     string            `json:"symbol"`
	Arm        int               `json:"arm"`
	Transition string            `json:"transition"`
	Reason     models.ExitReason `json:"reason,omitempty"`
	Qty        decimal.Decimal   `json:"qty"`
	Price      decimal.Decimal   `json:"price"`
	PnLSlice   decimal.Decimal   `json:"pnl_slice"`
	At         time.Time         `json:"at"`
}

// EventSink receives transition events. Publish must never block the
// risk loop; implementations buffer or drop.
type EventSink interface {
	Publish(e Event)
}

// Discard is a no-op sink for tests.
type Discard struct{}

func (Discard) Publish(Event) {}

// FileSink appends events as JSON lines from a background writer. When
// the buffer is full the event is dropped and counted; trading never
// waits on disk.
type FileSink struct {
	ch      chan Event
	dropped atomic.Int64
	done    chan struct{}
	once    sync.Once
}

// NewFileSink opens (or creates) the event log and starts the writer
// goroutine.
func NewFileSink(path string, buffer int) (*FileSink, error) {
	if buffer <= 0 {
		buffer = 256
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	s := &FileSink{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer f.Close()
		enc := json.NewEncoder(f)
		for e := range s.ch {
			if err := enc.Encode(e); err != nil {
				log.Printf("[sink] write failed: %v", err)
			}
		}
	}()
	return s, nil
}

// Publish enqueues the event, dropping it if the writer is behind.
func (s *FileSink) Publish(e Event) {
	select {
	case s.ch <- e:
	default:
		if n := s.dropped.Add(1); n%100 == 1 {
			log.Printf("[sink] buffer full, dropped %d events so far", n)
		}
	}
}

// Dropped reports how many events were discarded.
func (s *FileSink) Dropped() int64 { return s.dropped.Load() }

// Close drains the buffer and stops the writer.
func (s *FileSink) Close() {
	s.once.Do(func() { close(s.ch) })
	<-s.done
}

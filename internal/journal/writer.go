// Package journal buffers applied token updates and writes them in batches
// to a storage.UpdateJournal.
package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/observability"
	"token-dashboard-sync/internal/storage"
)

// Default configuration values.
const (
	DefaultBatchSize     = 500
	DefaultFlushInterval = 5 * time.Second
	DefaultBufferSize    = 10000
	DefaultWriteTimeout  = 10 * time.Second
)

// Config configures a Writer.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
	WriteTimeout  time.Duration
}

// DefaultConfig returns the default writer configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     DefaultBatchSize,
		FlushInterval: DefaultFlushInterval,
		BufferSize:    DefaultBufferSize,
		WriteTimeout:  DefaultWriteTimeout,
	}
}

// Writer implements tokensync.Recorder. Records are queued without blocking
// and flushed when a batch fills up, on every FlushInterval, and on Stop.
// Records that do not fit in the queue are dropped and counted.
type Writer struct {
	store storage.UpdateJournal
	cfg   Config
	log   *logrus.Entry

	queue chan domain.UpdateRecord
	wg    sync.WaitGroup

	mu      sync.Mutex
	running bool
	stop    chan struct{}

	statsMu sync.Mutex
	written int
	dropped int
}

// NewWriter creates a writer for store. Zero config fields take their defaults.
func NewWriter(store storage.UpdateJournal, cfg Config, log *logrus.Entry) *Writer {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Writer{
		store: store,
		cfg:   cfg,
		log:   log.WithField("component", "journal"),
		queue: make(chan domain.UpdateRecord, cfg.BufferSize),
	}
}

// Start launches the flush loop.
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("journal writer already running")
	}
	w.running = true
	w.stop = make(chan struct{})

	w.wg.Add(1)
	go w.loop(w.stop)

	w.log.WithField("batch_size", w.cfg.BatchSize).Info("journal writer started")
	return nil
}

// Stop flushes queued records and waits for the loop to exit.
func (w *Writer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	w.mu.Unlock()

	w.wg.Wait()
	written, dropped := w.Stats()
	w.log.WithFields(logrus.Fields{"written": written, "dropped": dropped}).Info("journal writer stopped")
}

// Record queues rec. It never blocks.
func (w *Writer) Record(rec domain.UpdateRecord) {
	select {
	case w.queue <- rec:
	default:
		w.addStats(0, 1)
	}
}

// Stats returns how many records were written and dropped so far.
func (w *Writer) Stats() (written, dropped int) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.written, w.dropped
}

func (w *Writer) loop(stop <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]*domain.UpdateRecord, 0, w.cfg.BatchSize)
	for {
		select {
		case rec := <-w.queue:
			batch = append(batch, &rec)
			if len(batch) >= w.cfg.BatchSize {
				batch = w.flush(batch)
			}
		case <-ticker.C:
			batch = w.flush(batch)
		case <-stop:
			// drain what was queued before Stop
			for {
				select {
				case rec := <-w.queue:
					batch = append(batch, &rec)
					if len(batch) >= w.cfg.BatchSize {
						batch = w.flush(batch)
					}
				default:
					w.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes batch and returns it emptied for reuse.
func (w *Writer) flush(batch []*domain.UpdateRecord) []*domain.UpdateRecord {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
	defer cancel()

	if err := w.store.InsertBulk(ctx, batch); err != nil {
		w.log.WithError(err).WithField("records", len(batch)).Error("failed to write journal batch")
		w.addStats(0, len(batch))
	} else {
		w.addStats(len(batch), 0)
	}
	return make([]*domain.UpdateRecord, 0, w.cfg.BatchSize)
}

func (w *Writer) addStats(written, dropped int) {
	w.statsMu.Lock()
	w.written += written
	w.dropped += dropped
	w.statsMu.Unlock()
	observability.RecordJournal(written, dropped)
}

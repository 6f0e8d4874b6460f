package store

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

const (
	recorderBatchSize     = 32
	recorderFlushInterval = time.Second
)

// NewRecorder returns a recorder that appends rows to the given session in the background. At
// most capacity rows are buffered, the recorder never blocks the caller.
func NewRecorder(store *Store, session int64, capacity int) *Recorder {
	result := &Recorder{
		store:   store,
		session: session,
		rows:    make(chan Row, capacity),
		done:    make(chan struct{}),
	}
	go result.run()
	return result
}

// Recorder writes rows asynchronously.
type Recorder struct {
	store   *Store
	session int64
	rows    chan Row
	done    chan struct{}
	seq     int64
	dropped uint64
	written uint64
	err     error
}

// Record a copy of the given row. If the recorder cannot keep up, the row is dropped. Record must
// not be called concurrently or after Close.
func (r *Recorder) Record(row []float64) {
	data := make([]float64, len(row))
	copy(data, row)
	next := Row{Seq: r.seq, Timestamp: time.Now(), Data: data}
	r.seq++

	select {
	case r.rows <- next:
	default:
		atomic.AddUint64(&r.dropped, 1)
		log.Printf("[WARN] recorder hangs, dropped row %d", next.Seq)
	}
}

// Dropped is the number of rows that were dropped so far.
func (r *Recorder) Dropped() uint64 {
	return atomic.LoadUint64(&r.dropped)
}

// Written is the number of rows that were written to the database so far.
func (r *Recorder) Written() uint64 {
	return atomic.LoadUint64(&r.written)
}

// Close writes all pending rows and stops the recorder. It returns the first write error.
func (r *Recorder) Close() error {
	close(r.rows)
	<-r.done
	return r.err
}

func (r *Recorder) run() {
	defer close(r.done)
	defer log.Print("[INFO] recorder shutdown")

	flush := time.NewTicker(recorderFlushInterval)
	defer flush.Stop()

	batch := make([]Row, 0, recorderBatchSize)
	for {
		select {
		case row, ok := <-r.rows:
			if !ok {
				r.write(batch)
				return
			}
			batch = append(batch, row)
			if len(batch) == recorderBatchSize {
				r.write(batch)
				batch = batch[:0]
			}
		case <-flush.C:
			r.write(batch)
			batch = batch[:0]
		}
	}
}

func (r *Recorder) write(batch []Row) {
	if len(batch) == 0 {
		return
	}
	err := r.store.AppendRows(context.Background(), r.session, batch)
	if err != nil {
		log.Printf("[ERROR] cannot record %d rows: %v", len(batch), err)
		if r.err == nil {
			r.err = err
		}
		return
	}
	atomic.AddUint64(&r.written, uint64(len(batch)))
}

// Package ingest records annotation runs in the store.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/annotator/pkg/annotate"
	"github.com/japaniel/annotator/pkg/db"
)

// Record is one tuple requested for a page, with how many spans it produced.
type Record struct {
	SourceID int64
	Tuple    annotate.Tuple
	Wrapped  int
}

// Recorder buffers records and writes them in batches, each batch inside one
// transaction. Writes happen on a background goroutine; the first failure is
// kept and returned by Close.
type Recorder struct {
	mu     sync.Mutex
	buf    []Record
	size   int
	ticker *time.Ticker
	closed bool
	stop   chan struct{}
	ticked sync.WaitGroup
	done   chan struct{}

	batches chan []Record
	conn    *sql.DB
	logger  *zap.Logger

	errMu   sync.Mutex
	lastErr error
	written int
}

// NewRecorder starts a recorder that flushes every size records and, when
// interval is positive, at least once per interval.
func NewRecorder(conn *sql.DB, size int, interval time.Duration, logger *zap.Logger) *Recorder {
	if size <= 0 {
		size = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		buf:     make([]Record, 0, size),
		size:    size,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		batches: make(chan []Record, 2),
		conn:    conn,
		logger:  logger.Named("ingest"),
	}

	go r.committer()

	if interval > 0 {
		r.ticker = time.NewTicker(interval)
		r.ticked.Add(1)
		go r.tick()
	}
	return r
}

// Add enqueues one record.
func (r *Recorder) Add(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	r.buf = append(r.buf, rec)
	if len(r.buf) >= r.size {
		r.flushLocked()
	}
	return nil
}

// AddOutcome enqueues a record for every tuple of an annotation run.
// Malformed tuples, which the engine never applies, are left out.
func (r *Recorder) AddOutcome(sourceID int64, tuples []annotate.Tuple, out annotate.Outcome, requireTranslation bool) error {
	for _, t := range tuples {
		if t.Validate(requireTranslation) != nil {
			continue
		}
		if err := r.Add(Record{SourceID: sourceID, Tuple: t, Wrapped: out.Wrapped[t.Phrase]}); err != nil {
			return err
		}
	}
	return nil
}

// flushLocked hands the buffer to the committer. r.mu must be held; a busy
// committer blocks the caller, which keeps memory bounded.
func (r *Recorder) flushLocked() {
	if len(r.buf) == 0 {
		return
	}
	batch := r.buf
	r.buf = make([]Record, 0, r.size)
	r.batches <- batch
}

func (r *Recorder) committer() {
	defer close(r.done)
	for batch := range r.batches {
		if err := r.write(batch); err != nil {
			r.logger.Warn("failed to record batch", zap.Int("records", len(batch)), zap.Error(err))
			r.errMu.Lock()
			if r.lastErr == nil {
				r.lastErr = err
			}
			r.errMu.Unlock()
			continue
		}
		r.errMu.Lock()
		r.written += len(batch)
		r.errMu.Unlock()
	}
}

func (r *Recorder) write(batch []Record) error {
	// Flushing must finish even while the caller is shutting down.
	tx, err := r.conn.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	for _, rec := range batch {
		phraseID, err := db.CreateOrGetPhrase(tx, db.Phrase{
			Phrase:           rec.Tuple.Phrase,
			ShortExplanation: rec.Tuple.ShortExplanation,
			LongExplanation:  rec.Tuple.LongExplanation,
			Translation:      rec.Tuple.Translation,
		})
		if err != nil {
			return fmt.Errorf("persist phrase %q: %w", rec.Tuple.Phrase, err)
		}
		seen := rec.Wrapped
		if seen < 1 {
			seen = 1
		}
		if err := db.LinkPhraseToSource(tx, phraseID, rec.SourceID, rec.Wrapped > 0, seen); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch (%d records): %w", len(batch), err)
	}
	return nil
}

func (r *Recorder) tick() {
	defer r.ticked.Done()
	for {
		select {
		case <-r.stop:
			return
		case <-r.ticker.C:
			r.mu.Lock()
			r.flushLocked()
			r.mu.Unlock()
		}
	}
}

// Written returns how many records have been committed so far.
func (r *Recorder) Written() int {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.written
}

// Close flushes buffered records, waits for every batch to commit and
// returns the first write error.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRecorderClosed
	}
	r.closed = true
	if r.ticker != nil {
		r.ticker.Stop()
	}
	r.flushLocked()
	r.mu.Unlock()

	close(r.stop)
	// Once tick has exited nothing else sends on batches.
	r.ticked.Wait()
	close(r.batches)
	<-r.done

	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.lastErr
}

// ErrRecorderClosed is returned when adding to or closing a closed Recorder.
var ErrRecorderClosed = &RecorderError{"recorder closed"}

// RecorderError is the error type of the package's sentinel errors.
type RecorderError struct{ msg string }

func (e *RecorderError) Error() string { return e.msg }

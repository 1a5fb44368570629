// Package reassembly implements the per-transfer reassembly automaton: a
// min-heap of out-of-order datagrams, consumed strictly in ascending
// sequence order and written to an output file.
package reassembly

import (
	"container/heap"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/kstaniek/dgram-xfer/internal/dgram"
	"github.com/kstaniek/dgram-xfer/internal/metrics"
)

// Result is the outcome of draining as many in-order frames as are
// currently available.
type Result int

const (
	// ResultWaiting means progress paused; more frames are expected.
	ResultWaiting Result = iota
	// ResultOK means the transfer is complete (filename and body ready).
	ResultOK
	// ResultBadName means the filename frame failed validation.
	ResultBadName
	// ResultCannotOpen means the filesystem refused to create the output file.
	ResultCannotOpen
	// ResultIOError means a write or close failed on an already-open output file.
	ResultIOError
)

func (r Result) String() string {
	switch r {
	case ResultWaiting:
		return "waiting"
	case ResultOK:
		return "ok"
	case ResultBadName:
		return "bad_name"
	case ResultCannotOpen:
		return "cannot_open"
	case ResultIOError:
		return "io_error"
	default:
		return "unknown"
	}
}

// filenameRegexp matches the filename carried by sequence-number-1 frames:
// word chars, digits, dot, ampersand, comma, colon, semicolon; no slash, no
// whitespace, at least one character.
var filenameRegexp = regexp.MustCompile(`^[\w\d.&,:;]+$`)

// pendingHeap is a min-heap of buffered datagrams ordered by sequence number.
type pendingHeap []dgram.Datagram

func (h pendingHeap) Len() int            { return len(h) }
func (h pendingHeap) Less(i, j int) bool  { return h[i].Number() < h[j].Number() }
func (h pendingHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x interface{}) { *h = append(*h, x.(dgram.Datagram)) }
func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Reassembler buffers out-of-order datagrams for a single transfer,
// consumes them in order, and writes the reconstructed file.
//
// A Reassembler is mutated only by the receive loop that owns it; it has no
// internal locking, matching the single-threaded concurrency model of the
// receiver.
type Reassembler struct {
	marker        uint32
	dir           string
	nextExpected  uint32
	pending       pendingHeap
	filename      string
	out           *os.File
	outPath       string
	filenameReady bool
	bodyReady     bool
	lastProgress  time.Time
}

// New creates a Reassembler for marker, writing its eventual output under dir
// (which must end in a path separator).
func New(marker uint32, dir string) *Reassembler {
	return &Reassembler{
		marker:       marker,
		dir:          dir,
		nextExpected: 1,
		lastProgress: time.Now(),
	}
}

// Marker returns the transfer identifier this reassembler was created for.
func (r *Reassembler) Marker() uint32 { return r.marker }

// Insert buffers d for later consumption by Process. d must belong to this
// reassembler's transfer; passing a datagram for a different marker is a
// programmer error in the caller (the registry is responsible for routing
// correctly) and panics rather than returning a recoverable error.
//
// Late or duplicate frames (number < nextExpected) are silently dropped.
func (r *Reassembler) Insert(d dgram.Datagram) {
	if d.Marker() != r.marker {
		panic(fmt.Sprintf("reassembly: datagram marker %d does not match reassembler marker %d", d.Marker(), r.marker))
	}
	if d.Number() < r.nextExpected {
		return
	}
	heap.Push(&r.pending, d)
}

// Process drains the pending heap while its minimum equals nextExpected and
// the transfer isn't yet complete, consuming each frame in turn. Stale
// duplicates (a copy of a frame already consumed) can surface as the heap
// minimum after their twin was consumed; they are discarded here rather than
// stalling the drain.
func (r *Reassembler) Process() Result {
	for len(r.pending) > 0 && !r.IsComplete() {
		if r.pending[0].Number() < r.nextExpected {
			heap.Pop(&r.pending)
			continue
		}
		if r.pending[0].Number() != r.nextExpected {
			break
		}
		d := heap.Pop(&r.pending).(dgram.Datagram)
		res := r.consume(d)
		if res != ResultWaiting {
			return res
		}
		r.nextExpected++
		r.lastProgress = time.Now()
	}
	if r.IsComplete() {
		return ResultOK
	}
	return ResultWaiting
}

// consume applies a single in-order frame and returns ResultWaiting on
// success or a terminal Result on failure.
func (r *Reassembler) consume(d dgram.Datagram) Result {
	if d.Number() == 1 {
		return r.consumeFilename(d)
	}
	return r.consumeBody(d)
}

func (r *Reassembler) consumeFilename(d dgram.Datagram) Result {
	name := string(d.Payload())
	if !filenameRegexp.MatchString(name) {
		return ResultBadName
	}
	path := filepath.Join(r.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return ResultCannotOpen
	}
	r.filename = name
	r.outPath = path
	r.out = f
	r.filenameReady = true
	return ResultWaiting
}

func (r *Reassembler) consumeBody(d dgram.Datagram) Result {
	payload := d.Payload()
	if len(payload) > 0 {
		n, err := r.out.Write(payload)
		if err != nil || n != len(payload) {
			return ResultIOError
		}
		metrics.AddBytesWritten(n)
	}
	if d.IsLast() {
		if err := r.out.Close(); err != nil {
			return ResultIOError
		}
		r.bodyReady = true
	}
	return ResultWaiting
}

// FilenameReady reports whether the filename frame has been consumed.
func (r *Reassembler) FilenameReady() bool { return r.filenameReady }

// BodyReady reports whether the terminal payload frame has been consumed.
func (r *Reassembler) BodyReady() bool { return r.bodyReady }

// IsComplete reports whether both the filename and the body are ready.
func (r *Reassembler) IsComplete() bool { return r.filenameReady && r.bodyReady }

// LastProgress returns the timestamp of the most recently consumed frame.
func (r *Reassembler) LastProgress() time.Time { return r.lastProgress }

// Filename returns the validated filename once known, or "" before frame 1
// has been consumed.
func (r *Reassembler) Filename() string { return r.filename }

// Close releases the output file. If the transfer never reached BodyReady,
// the partially written file is removed from disk; otherwise it is left in
// place at its final path. Close is idempotent.
func (r *Reassembler) Close() error {
	if r.out != nil {
		_ = r.out.Close()
		r.out = nil
	}
	if r.outPath == "" || r.bodyReady {
		return nil
	}
	if err := os.Remove(r.outPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

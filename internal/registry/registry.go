// Package registry maps a stream key (sender IP, sender port, transfer
// marker) to its Reassembler, manages eviction on completion or inactivity,
// and maintains a black-list of keys whose transfers were aborted.
//
// Registry is single-threaded by contract: only the receive loop that owns
// it ever calls its methods, so it carries no locks (spec'd concurrency
// model has no concurrent mutation to guard against).
package registry

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/kstaniek/dgram-xfer/internal/dgram"
	"github.com/kstaniek/dgram-xfer/internal/logging"
	"github.com/kstaniek/dgram-xfer/internal/metrics"
	"github.com/kstaniek/dgram-xfer/internal/reassembly"
)

// Key identifies one transfer's stream: the sender's address and port plus
// the transfer marker it chose.
type Key struct {
	IP     netip.Addr
	Port   uint16
	Marker uint32
}

// String renders the key as "<ip>-<port>-<marker>", the diagnostic form
// referenced in log lines.
func (k Key) String() string {
	return fmt.Sprintf("%s-%d-%d", k.IP, k.Port, k.Marker)
}

// Outcome describes what Handle did with an incoming datagram, for callers
// that want to log or count it.
type Outcome int

const (
	OutcomeProgressed Outcome = iota
	OutcomeCompleted
	OutcomeAborted
	OutcomeSuppressed
)

// Registry holds active reassemblers and the black-list of suppressed keys.
type Registry struct {
	dir             string
	active          map[Key]*reassembly.Reassembler
	blackList       map[Key]time.Time
	InactivityAfter time.Duration
	BlacklistFor    time.Duration
}

// New creates a Registry that writes completed transfers under dir.
func New(dir string, inactivityAfter, blacklistFor time.Duration) *Registry {
	return &Registry{
		dir:             dir,
		active:          make(map[Key]*reassembly.Reassembler),
		blackList:       make(map[Key]time.Time),
		InactivityAfter: inactivityAfter,
		BlacklistFor:    blacklistFor,
	}
}

// Handle dispatches one datagram already routed to key: it checks the
// black-list, finds-or-creates the reassembler, inserts the frame, and
// drives Process, evicting and black-listing on any terminal failure.
func (r *Registry) Handle(now time.Time, key Key, d dgram.Datagram) Outcome {
	if ts, blacklisted := r.blackList[key]; blacklisted {
		if now.Sub(ts) <= r.BlacklistFor {
			r.blackList[key] = now // sliding suppression window
			metrics.IncBlacklistSuppressed()
			return OutcomeSuppressed
		}
		delete(r.blackList, key)
	}

	re, ok := r.active[key]
	if !ok {
		re = reassembly.New(key.Marker, r.dir)
		r.active[key] = re
		metrics.IncStarted()
		metrics.SetActiveReassemblers(len(r.active))
	}

	re.Insert(d)
	switch re.Process() {
	case reassembly.ResultOK:
		r.evictCompleted(key, re)
		return OutcomeCompleted
	case reassembly.ResultWaiting:
		return OutcomeProgressed
	case reassembly.ResultBadName:
		metrics.IncAbortedBadName()
		r.abort(key, re, now)
		return OutcomeAborted
	case reassembly.ResultCannotOpen:
		metrics.IncAbortedCannotOpen()
		logging.L().Error("transfer_cannot_open", "key", key.String())
		r.abort(key, re, now)
		return OutcomeAborted
	case reassembly.ResultIOError:
		metrics.IncAbortedIOError()
		logging.L().Error("transfer_io_error", "key", key.String())
		r.abort(key, re, now)
		return OutcomeAborted
	default:
		r.abort(key, re, now)
		return OutcomeAborted
	}
}

// evictCompleted removes a finished reassembler without black-listing its key.
func (r *Registry) evictCompleted(key Key, re *reassembly.Reassembler) {
	_ = re.Close()
	delete(r.active, key)
	metrics.IncCompleted()
	metrics.SetActiveReassemblers(len(r.active))
	logging.L().Info("transfer_completed", "key", key.String(), "filename", re.Filename())
}

// abort evicts re (deleting its partial file) and black-lists key as of now.
func (r *Registry) abort(key Key, re *reassembly.Reassembler, now time.Time) {
	_ = re.Close()
	delete(r.active, key)
	r.blackList[key] = now
	metrics.SetActiveReassemblers(len(r.active))
	metrics.SetBlacklistSize(len(r.blackList))
}

// SweepStreams evicts any reassembler that has been idle longer than
// InactivityAfter, or that has somehow gone unevicted despite completing.
// Inactivity evictions black-list the key; completion evictions do not.
func (r *Registry) SweepStreams(now time.Time) {
	for key, re := range r.active {
		switch {
		case re.IsComplete():
			r.evictCompleted(key, re)
		case now.Sub(re.LastProgress()) > r.InactivityAfter:
			metrics.IncEvictedInactivity()
			logging.L().Warn("transfer_evicted_inactivity", "key", key.String())
			r.abort(key, re, now)
		}
	}
}

// SweepBlackList removes black-list entries older than BlacklistFor.
func (r *Registry) SweepBlackList(now time.Time) {
	for key, ts := range r.blackList {
		if now.Sub(ts) > r.BlacklistFor {
			delete(r.blackList, key)
		}
	}
	metrics.SetBlacklistSize(len(r.blackList))
}

// ActiveCount returns the number of in-flight reassemblers.
func (r *Registry) ActiveCount() int { return len(r.active) }

// BlacklistCount returns the number of suppressed keys.
func (r *Registry) BlacklistCount() int { return len(r.blackList) }

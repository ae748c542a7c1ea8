// Package calllog keeps a size & time bounded in-memory history of recent
// call events, for a dashboard or health endpoint to render without hitting
// persistence on every request.
package calllog

import (
	"sync"
	"time"

	"github.com/dbehnke/amichand/internal/callerid"
)

// Kind distinguishes the two call events the core recognizes.
type Kind string

const (
	KindBDial    Kind = "b_dial"
	KindTransfer Kind = "transfer"
)

// CallEvent is a recognized call event, shaped for direct JSON marshaling to
// a dashboard client or a persistence row.
type CallEvent struct {
	At         time.Time         `json:"at"`
	Kind       Kind              `json:"kind"`
	Caller     callerid.CallerID `json:"caller,omitempty"`
	Callee     callerid.CallerID `json:"callee,omitempty"`
	Redirector callerid.CallerID `json:"redirector,omitempty"`
	Party1     callerid.CallerID `json:"party1,omitempty"`
	Party2     callerid.CallerID `json:"party2,omitempty"`
}

// Log is a size & time bounded ring buffer of recent call events.
type Log struct {
	mu  sync.RWMutex
	buf []CallEvent
	max int
	ttl time.Duration
	now func() time.Time
}

// New builds a Log holding at most max events, pruning anything older than
// ttl on every Add. ttl <= 0 disables time-based pruning.
func New(max int, ttl time.Duration) *Log {
	if max <= 0 {
		max = 1
	}
	return &Log{max: max, ttl: ttl, now: time.Now}
}

// Add appends evt, pruning expired and overflowing entries first.
func (l *Log) Add(evt CallEvent) {
	l.mu.Lock()
	l.pruneLocked()
	l.buf = append(l.buf, evt)
	if len(l.buf) > l.max {
		l.buf = l.buf[len(l.buf)-l.max:]
	}
	l.mu.Unlock()
}

// Recent returns a copy of the events currently retained, oldest first.
func (l *Log) Recent() []CallEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]CallEvent, len(l.buf))
	copy(out, l.buf)
	return out
}

func (l *Log) pruneLocked() {
	if l.ttl <= 0 || len(l.buf) == 0 {
		return
	}
	cutoff := l.now().Add(-l.ttl)
	idx := len(l.buf)
	for i, e := range l.buf {
		if e.At.After(cutoff) {
			idx = i
			break
		}
	}
	l.buf = l.buf[idx:]
}

// Reporter adapts a Log to core.Reporter, recording on_b_dial/on_transfer
// events as they are recognized. The other Reporter methods are no-ops:
// this collaborator cares only about the two high-level call events, not
// every AMI frame.
type Reporter struct {
	log *Log
	now func() time.Time
}

// NewReporter builds a Reporter that appends into log.
func NewReporter(log *Log) *Reporter {
	return &Reporter{log: log, now: time.Now}
}

func (r *Reporter) TraceAMI(ev map[string]string) {}
func (r *Reporter) TraceMsg(msg string)           {}
func (r *Reporter) OnEvent(ev map[string]string)  {}

func (r *Reporter) OnBDial(caller, callee callerid.CallerID) {
	r.log.Add(CallEvent{At: r.now(), Kind: KindBDial, Caller: caller, Callee: callee})
}

func (r *Reporter) OnTransfer(redirector, party1, party2 callerid.CallerID) {
	r.log.Add(CallEvent{
		At: r.now(), Kind: KindTransfer,
		Redirector: redirector, Party1: party1, Party2: party2,
	})
}

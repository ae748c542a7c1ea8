package persistence

import (
	"time"

	"github.com/dbehnke/amichand/internal/callerid"
	"go.uber.org/zap"
)

// Reporter adapts a CallEventRepository to core.Reporter, persisting every
// recognized on_b_dial/on_transfer event. Write failures are logged, not
// propagated: a persistence hiccup must never stop channel tracking.
type Reporter struct {
	repo *CallEventRepository
	log  *zap.Logger
	now  func() time.Time
}

// NewReporter builds a Reporter writing through repo.
func NewReporter(repo *CallEventRepository, log *zap.Logger) *Reporter {
	return &Reporter{repo: repo, log: log, now: time.Now}
}

func (r *Reporter) TraceAMI(ev map[string]string) {}
func (r *Reporter) TraceMsg(msg string)           {}
func (r *Reporter) OnEvent(ev map[string]string)  {}

func (r *Reporter) OnBDial(caller, callee callerid.CallerID) {
	ev := &CallEvent{
		At:           r.now(),
		Kind:         "b_dial",
		CallerName:   caller.Name,
		CallerNumber: caller.Number,
		CalleeName:   callee.Name,
		CalleeNumber: callee.Number,
	}
	if err := r.repo.Create(ev); err != nil {
		r.log.Warn("persist b_dial failed", zap.Error(err))
	}
}

func (r *Reporter) OnTransfer(redirector, party1, party2 callerid.CallerID) {
	ev := &CallEvent{
		At:               r.now(),
		Kind:             "transfer",
		RedirectorName:   redirector.Name,
		RedirectorNumber: redirector.Number,
		Party1Name:       party1.Name,
		Party1Number:     party1.Number,
		Party2Name:       party2.Name,
		Party2Number:     party2.Number,
	}
	if err := r.repo.Create(ev); err != nil {
		r.log.Warn("persist transfer failed", zap.Error(err))
	}
}

// Package core reconstructs a graph of PBX channels from a stream of
// parsed Asterisk Manager Interface events and recognizes, purely from
// that event stream, the compound operations (dials, attended/blind/
// blonde transfers, pickups) a human observer would call "a call".
package core

import "github.com/dbehnke/amichand/internal/callerid"

// defaultInterestingEvents is the set of AMI event names the manager needs
// to function correctly. A manager built with NewDebugManager instead
// accepts every event, for building debug logs.
var defaultInterestingEvents = []string{
	"FullyBooted",
	"Newchannel", "Newstate", "NewCallerid",
	"NewAccountCode", "LocalBridge", "Rename",
	"Bridge", "Masquerade",
	"Dial", "Hangup", "Transfer",
	"UserEvent",
}

// ChannelManager owns the arena of live channels and the dial graph, and
// translates AMI events into the two high-level call events on_b_dial and
// on_transfer. OnEvent is its sole mutation entry point and must be driven
// from a single goroutine: the manager holds no internal locking.
type ChannelManager struct {
	reporter Reporter

	byName map[string]*Channel
	byID   map[ChannelID]*Channel

	dialFwd map[ChannelID][]ChannelID
	dialBck map[ChannelID]ChannelID

	// TrunkAccountCodeLength is the width of the trunk account code
	// embedded in outbound channel names (SIP/<code>-...). Defaults to
	// Asterisk's historical 9 digits; exposed so an operator can adapt
	// the tracker to a differently-configured dialplan.
	TrunkAccountCodeLength int

	// OnBDialFunc/OnTransferFunc are the override points a caller may
	// set to customize (or suppress) the default reporter forwarding.
	// Left nil, the defaults below are used.
	OnBDialFunc    func(caller, callee callerid.CallerID)
	OnTransferFunc func(redirector, party1, party2 callerid.CallerID)

	acceptAll         bool
	interestingEvents map[string]struct{}
}

// NewChannelManager builds a ChannelManager that only dispatches the event
// types it needs to function (see defaultInterestingEvents).
func NewChannelManager(reporter Reporter) *ChannelManager {
	m := newManager(reporter)
	m.interestingEvents = make(map[string]struct{}, len(defaultInterestingEvents))
	for _, e := range defaultInterestingEvents {
		m.interestingEvents[e] = struct{}{}
	}
	return m
}

// NewDebugManager builds a ChannelManager that accepts every AMI event,
// useful for producing complete debug traces.
func NewDebugManager(reporter Reporter) *ChannelManager {
	m := newManager(reporter)
	m.acceptAll = true
	return m
}

func newManager(reporter Reporter) *ChannelManager {
	return &ChannelManager{
		reporter:               reporter,
		byName:                 map[string]*Channel{},
		byID:                   map[ChannelID]*Channel{},
		dialFwd:                map[ChannelID][]ChannelID{},
		dialBck:                map[ChannelID]ChannelID{},
		TrunkAccountCodeLength: 9,
	}
}

// Accepts reports whether the manager wants to see events of the given
// name. Feeders should check this before calling OnEvent (it costs
// nothing to call OnEvent on an uninteresting event -- the dispatch
// switch below simply ignores unknown names -- but Accepts lets a feeder
// skip tracing work for events the manager will discard anyway).
func (m *ChannelManager) Accepts(eventName string) bool {
	if m.acceptAll {
		return true
	}
	_, ok := m.interestingEvents[eventName]
	return ok
}

// Flush discards all tracked channel and dial-graph state. Exposed as an
// explicit operator action rather than tied automatically to FullyBooted:
// see the FullyBooted dispatch case for why.
func (m *ChannelManager) Flush() {
	m.byName = map[string]*Channel{}
	m.byID = map[ChannelID]*Channel{}
	m.dialFwd = map[ChannelID][]ChannelID{}
	m.dialBck = map[ChannelID]ChannelID{}
}

// ChannelCount returns the number of live channels, for health/status
// reporting.
func (m *ChannelManager) ChannelCount() int {
	return len(m.byID)
}

func (m *ChannelManager) chanByName(ev map[string]string, key string, pop bool) (*Channel, error) {
	name, ok := ev[key]
	if !ok {
		return nil, &MissingChannelError{Key: key, Value: name}
	}
	c, ok := m.byName[name]
	if !ok {
		return nil, &MissingChannelError{Key: key, Value: name}
	}
	if pop {
		delete(m.byName, name)
	}
	return c, nil
}

func (m *ChannelManager) chanByUniqueid(id string) (*Channel, error) {
	c, ok := m.byID[ChannelID(id)]
	if !ok {
		return nil, &MissingUniqueidError{UniqueID: ChannelID(id)}
	}
	return c, nil
}

// getDialingChannel finds, from a B channel, the originating A channel:
// walk the dial-back-link graph, rewinding through any local-link chain at
// each hop, until no further dial-back entry is found.
func (m *ChannelManager) getDialingChannel(b *Channel) *Channel {
	a := b
	for {
		dialingID, ok := m.dialBck[a.ID]
		if !ok {
			break
		}
		next, ok := m.byID[dialingID]
		if !ok {
			break
		}
		a = next
		for a.Prev != "" {
			prev, ok := m.byID[a.Prev]
			if !ok {
				break
			}
			a = prev
			if a.Prev != "" {
				panic("getDialingChannel: local-link chain deeper than one hop")
			}
		}
	}
	return a
}

// getDialedChannels finds, from an A channel, the set of terminal B
// channels it has dialed, recursing through local-link chains.
func (m *ChannelManager) getDialedChannels(a *Channel) map[ChannelID]*Channel {
	out := map[ChannelID]*Channel{}
	for _, destID := range m.dialFwd[a.ID] {
		b, ok := m.byID[destID]
		if !ok {
			continue
		}
		if b.Next == "" {
			out[b.ID] = b
			continue
		}
		cur := b
		for cur.Next != "" {
			next, ok := m.byID[cur.Next]
			if !ok {
				break
			}
			cur = next
			if cur.Next != "" {
				panic("getDialedChannels: local-link chain deeper than one hop")
			}
		}
		for id, c := range m.getDialedChannels(cur) {
			out[id] = c
		}
	}
	return out
}

// doHangup severs both local-link back-pointers to c and asserts it holds
// no live bridge, matching Asterisk's contract that a Hangup always
// follows an Unlink.
func (m *ChannelManager) doHangup(c *Channel) {
	if c.Next != "" {
		if next, ok := m.byID[c.Next]; ok {
			next.Prev = ""
		}
	}
	if c.Prev != "" {
		if prev, ok := m.byID[c.Prev]; ok {
			prev.Next = ""
		}
	}
	c.Next, c.Prev = "", ""
	if len(c.Bridged) != 0 {
		panic("doHangup: channel still bridged at hangup")
	}
}

// doMasquerade transplants other's local-link chain and custom tag bag
// onto self, discarding self's own links first. Bridge membership is left
// untouched on both sides: Asterisk's own masquerade copies properties but
// leaves bridging alone, so any stale bridge on the clone is cleaned up
// when the clone itself is destroyed.
func (m *ChannelManager) doMasquerade(self, other *Channel) {
	if self.Next != "" {
		if next, ok := m.byID[self.Next]; ok {
			next.Prev = ""
		}
		self.Next = ""
	}
	if self.Prev != "" {
		if prev, ok := m.byID[self.Prev]; ok {
			prev.Next = ""
		}
		self.Prev = ""
	}

	if other.Next != "" {
		if next, ok := m.byID[other.Next]; ok {
			next.Prev = self.ID
		}
		self.Next = other.Next
		other.Next = ""
	}
	if other.Prev != "" {
		if prev, ok := m.byID[other.Prev]; ok {
			prev.Next = self.ID
		}
		self.Prev = other.Prev
		other.Prev = ""
	}

	// Later writes some producer still directs at other.Custom must
	// remain visible through self.Custom -- share the map, don't copy.
	self.Custom = other.Custom
}

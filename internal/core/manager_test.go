package core

import (
	"reflect"
	"sort"
	"testing"

	"github.com/dbehnke/amichand/internal/callerid"
)

// fakeReporter records every call the manager makes to it, for assertions.
type fakeReporter struct {
	traceMsgs []string
	bDials    []bDialCall
	transfers []transferCall
}

type bDialCall struct{ caller, callee callerid.CallerID }
type transferCall struct{ redirector, party1, party2 callerid.CallerID }

func (r *fakeReporter) TraceAMI(ev map[string]string) {}
func (r *fakeReporter) TraceMsg(msg string)            { r.traceMsgs = append(r.traceMsgs, msg) }
func (r *fakeReporter) OnEvent(ev map[string]string)   {}
func (r *fakeReporter) OnBDial(caller, callee callerid.CallerID) {
	r.bDials = append(r.bDials, bDialCall{caller, callee})
}
func (r *fakeReporter) OnTransfer(redirector, party1, party2 callerid.CallerID) {
	r.transfers = append(r.transfers, transferCall{redirector, party1, party2})
}

func newchan(channel, uniqueid, state string) map[string]string {
	return map[string]string{
		"Event":        "Newchannel",
		"Channel":      channel,
		"Uniqueid":     uniqueid,
		"ChannelState": state,
		"AccountCode":  "",
		"Exten":        "100",
		"CallerIDName": "Caller " + uniqueid,
		"CallerIDNum":  uniqueid,
	}
}

func newstate(channel, state string) map[string]string {
	return map[string]string{"Event": "Newstate", "Channel": channel, "ChannelState": state}
}

func dialBegin(aID, bID string) map[string]string {
	return map[string]string{"Event": "Dial", "SubEvent": "Begin", "UniqueID": aID, "DestUniqueID": bID}
}

func bridgeEv(c1, c2, state string) map[string]string {
	return map[string]string{"Event": "Bridge", "Channel1": c1, "Channel2": c2, "Bridgestate": state}
}

func localBridgeEv(c1, c2 string) map[string]string {
	return map[string]string{"Event": "LocalBridge", "Channel1": c1, "Channel2": c2}
}

func transferEv(channel, target, targetUniqueid, kind, exten string) map[string]string {
	return map[string]string{
		"Event": "Transfer", "Channel": channel, "TargetChannel": target,
		"TargetUniqueid": targetUniqueid, "TransferType": kind, "TransferExten": exten,
	}
}

func masqueradeEv(clone, cloneState, original, originalState string) map[string]string {
	return map[string]string{
		"Event": "Masquerade", "Clone": clone, "CloneState": cloneState,
		"Original": original, "OriginalState": originalState,
	}
}

// S1: simple A -> B call.
func TestS1SimpleCall(t *testing.T) {
	rep := &fakeReporter{}
	m := NewChannelManager(rep)

	m.OnEvent(newchan("SIP/trunk-0000000a", "a1", "0"))
	m.OnEvent(newchan("SIP/200-0000000b", "b1", "0"))
	m.OnEvent(dialBegin("a1", "b1"))
	m.OnEvent(newstate("SIP/200-0000000b", "5"))

	if len(rep.bDials) != 1 {
		t.Fatalf("expected 1 b_dial, got %d: %+v", len(rep.bDials), rep.bDials)
	}
	if len(rep.transfers) != 0 {
		t.Fatalf("expected no transfers, got %+v", rep.transfers)
	}
	a := m.byID["a1"]
	b := m.byID["b1"]
	if rep.bDials[0].caller != a.CallerID() || rep.bDials[0].callee != b.CallerID() {
		t.Fatalf("unexpected b_dial payload: %+v", rep.bDials[0])
	}
}

// TestRelevantChannelsFollowsBridgeAndLocalLinks exercises relatedChannels/
// relevantChannels (ported from cacofonisk's get_related/get_relevant
// assertion-only helpers) across a bridge and a Local-channel chain.
func TestRelevantChannelsFollowsBridgeAndLocalLinks(t *testing.T) {
	rep := &fakeReporter{}
	m := NewChannelManager(rep)

	m.OnEvent(newchan("SIP/100-0000000a", "a1", "6"))
	m.OnEvent(newchan("SIP/200-0000000b", "b1", "6"))
	m.OnEvent(bridgeEv("SIP/100-0000000a", "SIP/200-0000000b", "Link"))

	m.OnEvent(newchan("Local/200@default-00000001;1", "l1", "0"))
	m.OnEvent(newchan("Local/200@default-00000001;2", "l2", "0"))
	m.OnEvent(localBridgeEv("Local/200@default-00000001;1", "Local/200@default-00000001;2"))

	a := m.byID["a1"]
	b := m.byID["b1"]
	l1 := m.byID["l1"]
	l2 := m.byID["l2"]

	related := m.relatedChannels(a, nil)
	if len(related) != 2 {
		t.Fatalf("expected bridge peer only related to a, got %d: %+v", len(related), related)
	}
	if _, ok := related[b.ID]; !ok {
		t.Fatalf("expected b in related(a), got %+v", related)
	}

	relevant := m.relevantChannels(a)
	if len(relevant) != 2 || relevant[0].Name > relevant[1].Name {
		t.Fatalf("expected 2 relevant channels sorted by name, got %+v", relevant)
	}

	// l1/l2 are related to each other through the local-link chain, but
	// neither is relevant: Local/* legs never are, regardless of linkage.
	l1related := m.relatedChannels(l1, nil)
	if _, ok := l1related[l2.ID]; !ok {
		t.Fatalf("expected l2 reachable from l1 via local-link chain, got %+v", l1related)
	}
	if l1relevant := m.relevantChannels(l1); len(l1relevant) != 0 {
		t.Fatalf("expected no relevant channels from an all-Local chain, got %+v", l1relevant)
	}
}

// S2: attended transfer, fully bridged target.
func TestS2AttendedTransfer(t *testing.T) {
	rep := &fakeReporter{}
	m := NewChannelManager(rep)

	m.OnEvent(newchan("SIP/100-0000000a", "a1", "6"))
	m.OnEvent(newchan("SIP/200-0000000b", "b1", "6"))
	m.OnEvent(newchan("SIP/300-0000000c", "c1", "6"))
	m.OnEvent(newchan("SIP/400-0000000d", "d1", "6"))
	m.OnEvent(bridgeEv("SIP/100-0000000a", "SIP/200-0000000b", "Link"))
	m.OnEvent(bridgeEv("SIP/300-0000000c", "SIP/400-0000000d", "Link"))

	m.OnEvent(transferEv("SIP/300-0000000c", "SIP/100-0000000a", "a1", "Attended", ""))

	if len(rep.transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d: %+v", len(rep.transfers), rep.transfers)
	}
	a, b, d := m.byID["a1"], m.byID["b1"], m.byID["d1"]
	want := transferCall{redirector: a.CallerID(), party1: d.CallerID(), party2: b.CallerID()}
	if rep.transfers[0] != want {
		t.Fatalf("transfer = %+v, want %+v", rep.transfers[0], want)
	}
}

// S3: blind transfer -- on_b_dial must fire before the paired on_transfer.
func TestS3BlindTransfer(t *testing.T) {
	rep := &fakeReporter{}
	m := NewChannelManager(rep)

	m.OnEvent(newchan("SIP/100-0000000a", "a1", "6"))
	m.OnEvent(newchan("SIP/200-0000000b", "b1", "6"))
	m.OnEvent(bridgeEv("SIP/100-0000000a", "SIP/200-0000000b", "Link"))

	m.OnEvent(transferEv("SIP/200-0000000b", "SIP/100-0000000a", "a1", "Blind", "300"))

	m.OnEvent(newchan("Local/xfer-1;1", "ap", "0"))
	m.OnEvent(localBridgeEv("SIP/100-0000000a", "Local/xfer-1;1"))
	m.OnEvent(newchan("SIP/300-0000000c", "c1", "0"))
	m.OnEvent(dialBegin("ap", "c1"))
	m.OnEvent(newstate("SIP/300-0000000c", "5"))

	if len(rep.bDials) != 1 || len(rep.transfers) != 1 {
		t.Fatalf("expected 1 b_dial and 1 transfer, got b=%d t=%d", len(rep.bDials), len(rep.transfers))
	}
	a, b, c := m.byID["a1"], m.byID["b1"], m.byID["c1"]
	if rep.bDials[0] != (bDialCall{caller: b.CallerID(), callee: c.CallerID()}) {
		t.Fatalf("b_dial = %+v", rep.bDials[0])
	}
	want := transferCall{redirector: b.CallerID(), party1: a.CallerID(), party2: c.CallerID()}
	if rep.transfers[0] != want {
		t.Fatalf("transfer = %+v, want %+v", rep.transfers[0], want)
	}
}

// S4: blonde transfer -- attended transfer of a target that hasn't answered yet.
func TestS4BlondeTransfer(t *testing.T) {
	rep := &fakeReporter{}
	m := NewChannelManager(rep)

	m.OnEvent(newchan("SIP/100-0000000a", "a1", "6"))
	m.OnEvent(newchan("SIP/200-0000000b", "b1", "6"))
	m.OnEvent(bridgeEv("SIP/100-0000000a", "SIP/200-0000000b", "Link"))

	m.OnEvent(newchan("SIP/300-0000000e", "ap2", "6"))
	m.OnEvent(newchan("SIP/400-0000000c1", "c1", "0"))
	m.OnEvent(newchan("SIP/500-0000000c2", "c2", "0"))
	m.OnEvent(dialBegin("ap2", "c1"))
	m.OnEvent(dialBegin("ap2", "c2"))

	m.OnEvent(transferEv("SIP/200-0000000b", "SIP/300-0000000e", "ap2", "Attended", ""))

	if len(rep.transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d: %+v", len(rep.transfers), rep.transfers)
	}
	a := m.byID["a1"]
	ap2 := m.byID["ap2"]
	c1, c2 := m.byID["c1"], m.byID["c2"]
	got := map[callerid.CallerID]bool{}
	for _, tr := range rep.transfers {
		if tr.redirector != ap2.CallerID() || tr.party1 != a.CallerID() {
			t.Fatalf("unexpected transfer fixed parts: %+v", tr)
		}
		got[tr.party2] = true
	}
	if !got[c1.CallerID()] || !got[c2.CallerID()] {
		t.Fatalf("expected transfers to both c1 and c2, got %+v", rep.transfers)
	}
}

// S5: call pickup, recognized from a masquerade with mismatched states.
func TestS5Pickup(t *testing.T) {
	rep := &fakeReporter{}
	m := NewChannelManager(rep)

	m.OnEvent(newchan("SIP/100-0000000a", "a1", "6"))
	m.OnEvent(newchan("SIP/200-0000000b", "b1", "4"))
	m.OnEvent(dialBegin("a1", "b1"))
	m.OnEvent(newchan("SIP/300-0000000w", "w1", "6"))

	m.OnEvent(masqueradeEv("SIP/300-0000000w", "Up", "SIP/200-0000000b", "Ringing"))

	if len(rep.transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d: %+v", len(rep.transfers), rep.transfers)
	}
	a := m.byID["a1"]
	// The masquerade neither renames nor removes channels: both the loser
	// (b1) and the winner (w1) stay in the arena under their own uniqueids.
	// The callee must be synthesized from the loser's CLI, not the
	// winner's own.
	got := rep.transfers[0]
	if got.party1 != a.CallerID() {
		t.Fatalf("expected caller to be the original dialing channel, got %+v", got)
	}
	if got.redirector != got.party2 {
		t.Fatalf("expected redirector == party2 for pickup, got %+v", got)
	}
}

// S6: a lookup miss is tolerated, logged, and does not stop processing.
func TestS6MissingChannelTolerated(t *testing.T) {
	rep := &fakeReporter{}
	m := NewChannelManager(rep)

	m.OnEvent(newstate("SIP/nonexistent-000", "5"))

	if len(rep.traceMsgs) == 0 {
		t.Fatalf("expected a trace message for the missing channel")
	}

	// Processing must continue normally afterwards.
	m.OnEvent(newchan("SIP/trunk-0000000a", "a1", "0"))
	m.OnEvent(newchan("SIP/200-0000000b", "b1", "0"))
	m.OnEvent(dialBegin("a1", "b1"))
	m.OnEvent(newstate("SIP/200-0000000b", "5"))
	if len(rep.bDials) != 1 {
		t.Fatalf("expected processing to continue after a missing-channel error, got %d b_dials", len(rep.bDials))
	}
}

func TestHangupCleansIndicesAndDialGraph(t *testing.T) {
	rep := &fakeReporter{}
	m := NewChannelManager(rep)

	m.OnEvent(newchan("SIP/trunk-0000000a", "a1", "0"))
	m.OnEvent(newchan("SIP/200-0000000b", "b1", "0"))
	m.OnEvent(dialBegin("a1", "b1"))
	m.OnEvent(newstate("SIP/200-0000000b", "5"))

	m.OnEvent(map[string]string{"Event": "Hangup", "Channel": "SIP/200-0000000b", "Uniqueid": "b1"})

	if _, ok := m.byID["b1"]; ok {
		t.Fatalf("expected b1 removed from byID index")
	}
	if _, ok := m.byName["SIP/200-0000000b"]; ok {
		t.Fatalf("expected b1 removed from byName index")
	}
	if _, ok := m.dialBck["b1"]; ok {
		t.Fatalf("expected dial-back entry purged")
	}
	if fwd := m.dialFwd["a1"]; len(fwd) != 0 {
		t.Fatalf("expected dial-forward entry purged, got %v", fwd)
	}

	m.OnEvent(map[string]string{"Event": "Hangup", "Channel": "SIP/trunk-0000000a", "Uniqueid": "a1"})
	if len(m.byID) != 0 || len(m.byName) != 0 {
		t.Fatalf("expected empty steady state, got byID=%v byName=%v", m.byID, m.byName)
	}
	if len(m.dialFwd) != 0 || len(m.dialBck) != 0 {
		t.Fatalf("expected empty dial graph, got fwd=%v bck=%v", m.dialFwd, m.dialBck)
	}
}

func TestIndexAgreementInvariant(t *testing.T) {
	rep := &fakeReporter{}
	m := NewChannelManager(rep)
	m.OnEvent(newchan("SIP/100-0000000a", "a1", "0"))
	m.OnEvent(newchan("SIP/200-0000000b", "b1", "0"))

	var byNameIDs, byIDIDs []string
	for _, c := range m.byName {
		byNameIDs = append(byNameIDs, string(c.ID))
	}
	for id := range m.byID {
		byIDIDs = append(byIDIDs, string(id))
	}
	sort.Strings(byNameIDs)
	sort.Strings(byIDIDs)
	if !reflect.DeepEqual(byNameIDs, byIDIDs) {
		t.Fatalf("index disagreement: byName=%v byID=%v", byNameIDs, byIDIDs)
	}
}

func TestAcceptsFiltersNonDebugManager(t *testing.T) {
	m := NewChannelManager(&fakeReporter{})
	if !m.Accepts("Newchannel") {
		t.Fatalf("expected Newchannel to be interesting")
	}
	if m.Accepts("VarSet") {
		t.Fatalf("expected VarSet to be uninteresting for the default manager")
	}
	dbg := NewDebugManager(&fakeReporter{})
	if !dbg.Accepts("VarSet") {
		t.Fatalf("expected debug manager to accept every event")
	}
}

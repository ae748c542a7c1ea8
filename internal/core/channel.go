package core

import (
	"strconv"
	"strings"

	"github.com/dbehnke/amichand/internal/callerid"
)

// ChannelID is Asterisk's Uniqueid, used as the stable handle for a channel
// in the manager's arena. Channels never reference each other by pointer;
// every edge (prev/next, bridged, dial graph) is stored as a ChannelID.
type ChannelID string

// pendingBlindTransferKey is the Custom bag key a blind Transfer event
// stashes on the target channel while it waits for the matching B-dial.
const pendingBlindTransferKey = "raw_blind_transfer"

// Channel holds the Asterisk channel state tracked between AMI events: its
// identity, caller-id, current state, local-link chain position, bridged
// peers, and a small custom tag bag moved wholesale on masquerade.
type Channel struct {
	Name        string
	ID          ChannelID
	State       int
	AccountCode string
	Exten       string

	callerID callerid.CallerID

	Prev    ChannelID // "" if none
	Next    ChannelID // "" if none
	Bridged map[ChannelID]struct{}
	Custom  map[string]interface{}

	trunkCodeLen int
}

// newChannel builds a Channel from a Newchannel AMI event. trunkCodeLen is
// the configured width of the trunk account-code embedded in outbound
// channel names (see ChannelManager.TrunkAccountCodeLength), defaulting to
// Asterisk's historical 9-digit convention.
func newChannel(ev map[string]string, trunkCodeLen int) *Channel {
	if trunkCodeLen <= 0 {
		trunkCodeLen = 9
	}
	name := ev["Channel"]
	accountCode := ev["AccountCode"]
	exten := ev["Exten"]
	state, _ := strconv.Atoi(ev["ChannelState"])

	c := &Channel{
		Name:         name,
		ID:           ChannelID(ev["Uniqueid"]),
		State:        state,
		AccountCode:  accountCode,
		Exten:        exten,
		Bridged:      map[ChannelID]struct{}{},
		Custom:       map[string]interface{}{},
		trunkCodeLen: trunkCodeLen,
	}

	if isNumeric(accountCode) && len(accountCode) == trunkCodeLen &&
		strings.HasPrefix(name, "SIP/"+accountCode+"-") {
		// Outbound leg to a trunk: the nominal caller-id is wrong.
		c.callerID = callerid.CallerID{Name: "", Number: exten}
	} else {
		code, _ := strconv.Atoi(accountCode)
		c.callerID = callerid.CallerID{
			Code:     code,
			Name:     ev["CallerIDName"],
			Number:   ev["CallerIDNum"],
			IsPublic: true,
		}
	}
	return c
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsRelevant reports whether the channel is a live SIP leg, as opposed to a
// Local-channel scaffolding half or a zombie.
func (c *Channel) IsRelevant() bool {
	return strings.HasPrefix(c.Name, "SIP/") && !strings.HasSuffix(c.Name, "<ZOMBIE>")
}

// CallerID returns the effective caller-id, applying the name-derived
// account-code override on every read: the reported account code always
// reflects the channel's current name, even across renames/masquerades.
func (c *Channel) CallerID() callerid.CallerID {
	if !strings.HasPrefix(c.Name, "SIP/") {
		return c.callerID
	}
	rest := c.Name[len("SIP/"):]
	if len(rest) > c.trunkCodeLen && rest[c.trunkCodeLen] == '-' && isNumeric(rest[:c.trunkCodeLen]) {
		code, _ := strconv.Atoi(rest[:c.trunkCodeLen])
		return c.callerID.Replace(callerid.WithCode(code))
	}
	return c.callerID.Replace(callerid.WithCode(0))
}

// setName renames the channel in place. The caller (ChannelManager) is
// responsible for reinserting it under the new name in the by-name index.
func (c *Channel) setName(name string) {
	c.Name = name
}

// stateTransition reports which recognition hooks a state change should
// trigger, mirroring Asterisk's AST_STATE_* semantics for dial detection.
type stateTransition struct {
	FiredADial bool
	FiredBDial bool
}

// setState applies a Newstate event. It panics if the event claims no
// state change occurred -- Asterisk is contractually not supposed to emit
// one. Firing rules: leaving Down (0) for Dialing/Ring/Up fires the A-dial
// hook; leaving Down for Ringing/Up fires the B-dial hook (new may satisfy
// both, at Up).
func (c *Channel) setState(ev map[string]string) stateTransition {
	old := c.State
	newState, _ := strconv.Atoi(ev["ChannelState"])
	if old == newState {
		panic("setState: ChannelState did not change, violates Asterisk Newstate contract")
	}
	c.State = newState

	var t stateTransition
	if old == 0 {
		switch newState {
		case 3, 4, 6:
			t.FiredADial = true
		}
		switch newState {
		case 5, 6:
			t.FiredBDial = true
		}
	}
	return t
}

// setCallerID applies a NewCallerid event. The account code is preserved;
// only name/number/public-presentation are overwritten.
func (c *Channel) setCallerID(ev map[string]string) {
	c.callerID = callerid.CallerID{
		Code:     c.callerID.Code,
		Name:     ev["CallerIDName"],
		Number:   ev["CallerIDNum"],
		IsPublic: strings.Contains(ev["CID-CallingPres"], "Allowed"),
	}
}

// setAccountCode applies a NewAccountCode event.
func (c *Channel) setAccountCode(ev map[string]string) {
	c.AccountCode = ev["AccountCode"]
}

// isBridged reports whether this channel currently has any bridged peer.
func (c *Channel) isBridged() bool {
	return len(c.Bridged) > 0
}

// bridgedPeer returns the single bridged peer's id. Asterisk only ever
// bridges channels pairwise; any other count is a contract violation we
// still surface as a typed, recoverable error (matching BridgedError in the
// source protocol, which downstream callers may want to merely skip).
func (c *Channel) bridgedPeer() (ChannelID, error) {
	if len(c.Bridged) != 1 {
		return "", &BridgedError{ChannelName: c.Name, PeerCount: len(c.Bridged)}
	}
	for id := range c.Bridged {
		return id, nil
	}
	panic("unreachable")
}

// popPendingBlindTransfer returns and clears the channel initiating a pending
// blind transfer onto this channel, if one was stashed by a Transfer/Blind
// event that arrived ahead of the corresponding B-dial.
func (c *Channel) popPendingBlindTransfer() (ChannelID, bool) {
	v, ok := c.Custom[pendingBlindTransferKey]
	if !ok {
		return "", false
	}
	delete(c.Custom, pendingBlindTransferKey)
	id, _ := v.(ChannelID)
	return id, true
}

func (c *Channel) setPendingBlindTransfer(from ChannelID) {
	c.Custom[pendingBlindTransferKey] = from
}

// doLocalBridge ties two halves of a Local channel pair together: self
// becomes the head, other the tail. Both channels must be unlinked going
// in -- Asterisk never nests Local-channel chains deeper than one hop.
func (c *Channel) doLocalBridge(other *Channel) {
	if c.Next != "" || c.Prev != "" {
		panic("doLocalBridge: self already linked")
	}
	if other.Next != "" || other.Prev != "" {
		panic("doLocalBridge: other already linked")
	}
	c.Next = other.ID
	other.Prev = c.ID
}

// doLink marks self and other as bridged to each other.
func (c *Channel) doLink(other *Channel) {
	c.Bridged[other.ID] = struct{}{}
	other.Bridged[c.ID] = struct{}{}
}

// doUnlink removes the bridge between self and other.
func (c *Channel) doUnlink(other *Channel) {
	delete(c.Bridged, other.ID)
	delete(other.Bridged, c.ID)
}

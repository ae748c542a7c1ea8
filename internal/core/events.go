package core

// OnEvent dispatches a single AMI event. Recoverable errors (a channel or
// uniqueid lookup miss, a malformed bridge set) are logged via the
// reporter and the event is otherwise skipped; dispatch resumes on the
// next call. Anything else dispatch() panics with is a contract
// violation -- the event stream itself broke a documented Asterisk
// invariant -- and is allowed to propagate.
//
// The reporter is echoed the event regardless of whether dispatch
// succeeded, matching the documented contract that trace_ami/on_event
// always see every event handed to the manager.
func (m *ChannelManager) OnEvent(ev map[string]string) {
	m.reporter.TraceAMI(ev)
	defer m.reporter.OnEvent(ev)

	if err := m.dispatch(ev); err != nil {
		if !recoverable(err) {
			panic(err)
		}
		m.reporter.TraceMsg(err.Error())
	}
}

func (m *ChannelManager) dispatch(ev map[string]string) error {
	switch ev["Event"] {
	case "FullyBooted":
		// Intentionally does not flush channel state here -- see
		// ChannelManager.Flush and the FullyBooted open question in
		// DESIGN.md. An automatic flush on every reconnect would
		// silently drop in-progress calls from tracking.
		m.reporter.TraceMsg("connected to Asterisk")

	case "Newchannel":
		c := newChannel(ev, m.TrunkAccountCodeLength)
		m.byName[c.Name] = c
		m.byID[c.ID] = c

	case "Newstate":
		c, err := m.chanByName(ev, "Channel", false)
		if err != nil {
			return err
		}
		t := c.setState(ev)
		if t.FiredADial {
			m.rawADial(c)
		}
		if t.FiredBDial {
			m.bDial(c)
		}

	case "NewCallerid":
		c, err := m.chanByName(ev, "Channel", false)
		if err != nil {
			return err
		}
		c.setCallerID(ev)

	case "NewAccountCode":
		c, err := m.chanByName(ev, "Channel", false)
		if err != nil {
			return err
		}
		c.setAccountCode(ev)

	case "LocalBridge":
		c1, err := m.chanByName(ev, "Channel1", false)
		if err != nil {
			return err
		}
		c2, err := m.chanByName(ev, "Channel2", false)
		if err != nil {
			return err
		}
		c1.doLocalBridge(c2)

	case "Rename":
		c, err := m.chanByName(ev, "Channel", true)
		if err != nil {
			return err
		}
		c.setName(ev["Newname"])
		m.byName[c.Name] = c

	case "Bridge":
		c1, err := m.chanByName(ev, "Channel1", false)
		if err != nil {
			return err
		}
		c2, err := m.chanByName(ev, "Channel2", false)
		if err != nil {
			return err
		}
		switch ev["Bridgestate"] {
		case "Link":
			c1.doLink(c2)
		case "Unlink":
			c1.doUnlink(c2)
		default:
			panic("dispatch Bridge: unknown Bridgestate " + ev["Bridgestate"])
		}

	case "Masquerade":
		clone, err := m.chanByName(ev, "Clone", false)
		if err != nil {
			return err
		}
		original, err := m.chanByName(ev, "Original", false)
		if err != nil {
			return err
		}
		if ev["CloneState"] != ev["OriginalState"] {
			if ev["OriginalState"] != "Ring" && ev["OriginalState"] != "Ringing" {
				panic("dispatch Masquerade: unexpected OriginalState " + ev["OriginalState"])
			}
			if ev["CloneState"] != "Up" {
				panic("dispatch Masquerade: unexpected CloneState " + ev["CloneState"])
			}
			if ev["OriginalState"] == "Ringing" {
				if err := m.pickupTransfer(clone, original); err != nil {
					return err
				}
			}
		}
		m.doMasquerade(original, clone)

	case "Hangup":
		c, err := m.chanByName(ev, "Channel", true)
		if err != nil {
			return err
		}
		m.doHangup(c)
		delete(m.byID, c.ID)

		if aID, ok := m.dialBck[c.ID]; ok {
			delete(m.dialBck, c.ID)
			fwd := m.dialFwd[aID]
			for i, id := range fwd {
				if id == c.ID {
					fwd = append(fwd[:i], fwd[i+1:]...)
					break
				}
			}
			if len(fwd) == 0 {
				delete(m.dialFwd, aID)
			} else {
				m.dialFwd[aID] = fwd
			}
		}

		if len(m.byID) == 0 {
			m.reporter.TraceMsg("(no channels left)")
		}

	case "Dial":
		switch ev["SubEvent"] {
		case "Begin":
			aID := ChannelID(ev["UniqueID"])
			bID := ChannelID(ev["DestUniqueID"])
			if _, err := m.chanByUniqueid(string(aID)); err != nil {
				return err
			}
			if _, err := m.chanByUniqueid(string(bID)); err != nil {
				return err
			}
			if _, already := m.dialBck[bID]; already {
				panic("dispatch Dial/Begin: DestUniqueID already has a dial-back entry")
			}
			m.dialFwd[aID] = append(m.dialFwd[aID], bID)
			m.dialBck[bID] = aID
		case "End":
			// Cleaned up at Hangup.
		default:
			panic("dispatch Dial: unknown SubEvent " + ev["SubEvent"])
		}

	case "Transfer":
		c, err := m.chanByName(ev, "Channel", false)
		if err != nil {
			return err
		}
		target, err := m.chanByName(ev, "TargetChannel", false)
		if err != nil {
			return err
		}
		switch ev["TransferType"] {
		case "Attended":
			return m.attendedTransfer(c, target)
		case "Blind":
			m.blindTransfer(c, target)
		default:
			panic("dispatch Transfer: unknown TransferType " + ev["TransferType"])
		}

	default:
		// Unknown/uninteresting event: no-op.
	}
	return nil
}

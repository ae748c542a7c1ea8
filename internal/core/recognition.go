package core

import "github.com/dbehnke/amichand/internal/callerid"

// rawADial is a documented no-op: getting an a_dial event consistent with
// the on_transfer recognition rules below is not worth the complexity it
// would add, so the hook exists for symmetry but never fires anything.
func (m *ChannelManager) rawADial(channel *Channel) {}

// bDial fires when a B-side channel first reaches Ringing or Up. It
// resolves the true originating A-side (possibly through a chain of local
// bridges) and emits on_b_dial -- or, if a blind transfer is pending on
// that A channel, emits on_b_dial followed by on_transfer.
func (m *ChannelManager) bDial(b *Channel) {
	if !b.IsRelevant() {
		return
	}
	a := m.getDialingChannel(b)
	callee := b.CallerID()

	if oldAID, pending := a.popPendingBlindTransfer(); pending {
		oldA, ok := m.byID[oldAID]
		if !ok {
			m.onBDial(a.CallerID(), callee)
			return
		}
		caller := oldA.CallerID()
		m.onBDial(caller, callee)

		redirector := caller
		caller = a.CallerID()
		m.onTransfer(redirector, caller, callee)
		return
	}

	m.onBDial(a.CallerID(), callee)
}

// attendedTransfer handles a Transfer/Attended event. If the target is
// already bridged, this is a classical attended transfer; if the target
// has only open (unanswered) dials, this is a blonde transfer and one
// on_transfer fires per dialed candidate.
func (m *ChannelManager) attendedTransfer(channel, target *Channel) error {
	redirector := target.CallerID()
	aID, err := channel.bridgedPeer()
	if err != nil {
		return err
	}
	a, ok := m.byID[aID]
	if !ok {
		return &MissingUniqueidError{UniqueID: aID}
	}
	caller := a.CallerID()

	if target.isBridged() {
		bID, err := target.bridgedPeer()
		if err != nil {
			return err
		}
		b, ok := m.byID[bID]
		if !ok {
			return &MissingUniqueidError{UniqueID: bID}
		}
		m.onTransfer(redirector, caller, b.CallerID())
		return nil
	}

	for _, b := range m.getDialedChannels(target) {
		m.onTransfer(redirector, caller, b.CallerID())
	}
	return nil
}

// blindTransfer handles a Transfer/Blind event, which arrives before the
// dial it describes. It stashes the redirecting channel on the target so
// the subsequent b-dial can complete the pattern (see bDial).
func (m *ChannelManager) blindTransfer(channel, target *Channel) {
	target.setPendingBlindTransfer(channel.ID)
}

// pickupTransfer handles a call pickup, recognized from a Masquerade whose
// Original was Ringing and Clone has answered Up. The winner's own
// caller-id is unreliable (it dialed in), so the reported callee identity
// is synthesized from the loser's (the original ringing destination's)
// caller-id.
func (m *ChannelManager) pickupTransfer(winner, loser *Channel) error {
	a := m.getDialingChannel(loser)
	caller := a.CallerID()

	dest := loser.CallerID()
	callee := winner.CallerID().Replace(
		callerid.WithName(dest.Name),
		callerid.WithNumber(dest.Number),
		callerid.WithPublic(dest.IsPublic),
	)

	// callee appears as both redirector and one party: the pickup was
	// caused by the destination, not by any explicit third party.
	m.onTransfer(callee, caller, callee)
	return nil
}

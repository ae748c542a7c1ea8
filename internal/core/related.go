package core

import "sort"

// relatedChannels returns every channel reachable from c by walking the
// local-link chain (Prev/Next) and bridge peerings, depth-first. It exists
// purely to back invariant assertions in tests, not production dispatch.
func (m *ChannelManager) relatedChannels(c *Channel, used map[ChannelID]*Channel) map[ChannelID]*Channel {
	if used == nil {
		used = map[ChannelID]*Channel{}
	}
	if _, seen := used[c.ID]; seen {
		return used
	}
	used[c.ID] = c

	if c.Prev != "" {
		if p, ok := m.byID[c.Prev]; ok {
			m.relatedChannels(p, used)
		}
	}
	if c.Next != "" {
		if n, ok := m.byID[c.Next]; ok {
			m.relatedChannels(n, used)
		}
	}
	for id := range c.Bridged {
		if b, ok := m.byID[id]; ok {
			m.relatedChannels(b, used)
		}
	}
	return used
}

// relevantChannels returns the IsRelevant subset of relatedChannels(c),
// sorted by name for deterministic comparisons in tests.
func (m *ChannelManager) relevantChannels(c *Channel) []*Channel {
	related := m.relatedChannels(c, nil)
	out := make([]*Channel, 0, len(related))
	for _, ch := range related {
		if ch.IsRelevant() {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

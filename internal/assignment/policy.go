// Package assignment binds pending complaints to online agents and drains
// the waiting queue when capacity frees up.
package assignment

import "github.com/angelmondragon/supportdesk-backend/internal/agents"

// pickAgent returns the least loaded eligible agent. loads must already be in
// stable order (created_at, id) so ties go to the earliest agent. Live-chat
// complaints only go to agents with no live chat in progress.
func pickAgent(loads []agents.Load, liveChat bool) (agents.Load, bool) {
	var (
		best  agents.Load
		found bool
	)
	for _, l := range loads {
		if !l.Agent.IsOnline {
			continue
		}
		if liveChat && l.LiveChat > 0 {
			continue
		}
		if !found || l.Active < best.Active {
			best = l
			found = true
		}
	}
	return best, found
}

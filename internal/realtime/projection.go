package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tbourn/go-giftchain-backend/internal/domain"
)

var errUnknownType = errors.New("unknown message type")

// applyLocked folds env into the projection. Callers hold h.mu.
func (h *Hub) applyLocked(env Envelope) error {
	switch env.Type {
	case TypeGiftCreated:
		var g GiftProjection
		if err := decodePayload(env.Payload, &g); err != nil {
			return err
		}
		h.placeLocked(g)

	case TypeGiftClaimed:
		var p ClaimedPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		h.updateLocked(p.GiftUnitID, func(g *GiftProjection) {
			at := p.ClaimedAt
			g.Status = domain.GiftClaimed
			g.ClaimedAt = &at
		})

	case TypeChainContinued:
		var p ContinuedPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		h.updateLocked(p.GiftUnitID, func(g *GiftProjection) {
			at := p.ContinuedAt
			g.ContinuedAt = &at
		})
		child := p.NewGiftUnit
		if child.ContinuedFromGiftUnitID == nil && p.GiftUnitID != "" {
			parent := p.GiftUnitID
			child.ContinuedFromGiftUnitID = &parent
		}
		h.placeLocked(child)

	case TypeStateUpdate:
		var s StateSnapshot
		if err := decodePayload(env.Payload, &s); err != nil {
			return err
		}
		h.replaceLocked(s)

	default:
		return fmt.Errorf("%w: %q", errUnknownType, env.Type)
	}
	return nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(raw, v)
}

// placeLocked records a created gift in the recent list and in a chain.
//
// A gift already known by id is updated in place. Otherwise it is appended to
// the chain holding its parent: directly when the parent ends that chain, or
// as a new branch sequence sharing the prefix up to the parent. Without a
// parent id, a chain whose tail sits at chainPosition-1 is used. Anything else
// starts a new chain.
func (h *Hub) placeLocked(g GiftProjection) {
	if g.ID == "" {
		return
	}
	h.pushRecentLocked(g)

	known := false
	for ci := range h.chains {
		for gi := range h.chains[ci] {
			if h.chains[ci][gi].ID == g.ID {
				h.chains[ci][gi] = mergeProjection(h.chains[ci][gi], g)
				known = true
			}
		}
	}
	if known {
		return
	}

	if g.ContinuedFromGiftUnitID != nil {
		pid := *g.ContinuedFromGiftUnitID
		for ci, chain := range h.chains {
			if chain[len(chain)-1].ID == pid {
				h.extendChainLocked(ci, g)
				return
			}
		}
		for _, chain := range h.chains {
			for gi := range chain {
				if chain[gi].ID == pid {
					branch := append(append([]GiftProjection{}, chain[:gi+1]...), g)
					h.appendChainLocked(branch)
					return
				}
			}
		}
	}

	if g.ChainPosition > 1 {
		for ci := len(h.chains) - 1; ci >= 0; ci-- {
			chain := h.chains[ci]
			if chain[len(chain)-1].ChainPosition == g.ChainPosition-1 {
				h.extendChainLocked(ci, g)
				return
			}
		}
	}

	h.appendChainLocked([]GiftProjection{g})
}

// pushRecentLocked inserts g newest-first, replacing any entry with the same
// id, and trims to the configured limit.
func (h *Hub) pushRecentLocked(g GiftProjection) {
	out := make([]GiftProjection, 0, len(h.recent)+1)
	for _, r := range h.recent {
		if r.ID == g.ID {
			g = mergeProjection(r, g)
			continue
		}
		out = append(out, r)
	}
	pos := len(out)
	for i, r := range out {
		if !g.CreatedAt.Before(r.CreatedAt) {
			pos = i
			break
		}
	}
	out = append(out, GiftProjection{})
	copy(out[pos+1:], out[pos:])
	out[pos] = g
	if len(out) > h.opts.RecentLimit {
		out = out[:h.opts.RecentLimit]
	}
	h.recent = out
}

// extendChainLocked appends g to chain ci and moves the chain to the end as
// the most recently active.
func (h *Hub) extendChainLocked(ci int, g GiftProjection) {
	chain := append(h.chains[ci], g)
	h.chains = append(h.chains[:ci], h.chains[ci+1:]...)
	h.appendChainLocked(chain)
}

// appendChainLocked adds chain as the newest sequence, dropping the oldest
// beyond MaxChains.
func (h *Hub) appendChainLocked(chain []GiftProjection) {
	h.chains = append(h.chains, chain)
	if over := len(h.chains) - h.opts.MaxChains; over > 0 {
		h.chains = h.chains[over:]
	}
}

// updateLocked applies fn to every copy of gift id.
func (h *Hub) updateLocked(id string, fn func(*GiftProjection)) {
	for i := range h.recent {
		if h.recent[i].ID == id {
			fn(&h.recent[i])
		}
	}
	for ci := range h.chains {
		for gi := range h.chains[ci] {
			if h.chains[ci][gi].ID == id {
				fn(&h.chains[ci][gi])
			}
		}
	}
}

func (h *Hub) replaceLocked(s StateSnapshot) {
	recent := append([]GiftProjection{}, s.RecentGifts...)
	if len(recent) > h.opts.RecentLimit {
		recent = recent[:h.opts.RecentLimit]
	}
	chains := make([][]GiftProjection, 0, len(s.ActiveChains))
	for _, c := range s.ActiveChains {
		if len(c) > 0 {
			chains = append(chains, append([]GiftProjection{}, c...))
		}
	}
	if over := len(chains) - h.opts.MaxChains; over > 0 {
		chains = chains[over:]
	}
	h.recent = recent
	h.chains = chains
}

func (h *Hub) snapshotLocked() StateSnapshot {
	s := StateSnapshot{
		ActiveChains: make([][]GiftProjection, 0, len(h.chains)),
		RecentGifts:  append([]GiftProjection{}, h.recent...),
	}
	for _, c := range h.chains {
		s.ActiveChains = append(s.ActiveChains, append([]GiftProjection{}, c...))
	}
	return s
}

// mergeProjection overlays next on prev, keeping lifecycle stamps that next
// does not carry.
func mergeProjection(prev, next GiftProjection) GiftProjection {
	if next.ClaimedAt == nil {
		next.ClaimedAt = prev.ClaimedAt
		if prev.Status == domain.GiftClaimed {
			next.Status = prev.Status
		}
	}
	if next.ContinuedAt == nil {
		next.ContinuedAt = prev.ContinuedAt
	}
	if next.ContinuedFromGiftUnitID == nil {
		next.ContinuedFromGiftUnitID = prev.ContinuedFromGiftUnitID
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = prev.CreatedAt
	}
	return next
}

package jam

import (
	"context"
	"fmt"
	"strings"

	logx "jambot/pkg/logx"
)

// Vote is a poll-answer event.
type Vote struct {
	PollID      string
	UserID      int64
	DisplayName string
	Option      int // option index, NoOption when the vote was retracted
}

type OutcomeKind int

const (
	// OutcomeIgnored: unknown poll, bad option index, or retraction by a non-voter.
	OutcomeIgnored OutcomeKind = iota
	// OutcomeUnchanged: the user re-selected the role they already hold.
	OutcomeUnchanged
	// OutcomeRejected: the role is held by someone else.
	OutcomeRejected
	OutcomeAssigned
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeRejected:
		return "rejected"
	case OutcomeAssigned:
		return "assigned"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "ignored"
	}
}

// Outcome describes what a vote did.
type Outcome struct {
	Kind      OutcomeKind
	PollID    string
	ChatID    int64
	MessageID int

	// Option is the role assigned, contested, or freed by a cancellation.
	Option string
	// Previous is the option the user gave up when switching roles.
	Previous string
	// Free lists unfilled roles after the vote (assigned/cancelled only).
	Free []Role
}

// Reconciler applies votes to the cache and the store. First writer wins:
// a role stays with its occupant until that occupant switches or retracts.
//
// Writes go to the store before the cache is touched, so a failed statement
// leaves the cached poll as it was.
type Reconciler struct {
	cache *Cache
	store Store
	log   logx.Logger
}

func NewReconciler(cache *Cache, store Store, log logx.Logger) *Reconciler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reconciler{cache: cache, store: store, log: log}
}

func (r *Reconciler) Apply(ctx context.Context, v Vote) (Outcome, error) {
	p, ok := r.cache.Get(v.PollID)
	if !ok {
		r.log.Debug("vote for unknown poll ignored", logx.String("poll_id", v.PollID), logx.Int64("user_id", v.UserID))
		return Outcome{Kind: OutcomeIgnored, PollID: v.PollID}, nil
	}
	out := Outcome{PollID: p.ID, ChatID: p.ChatID, MessageID: p.MessageID}

	if v.Option == NoOption {
		return r.cancel(ctx, p, v, out)
	}
	if v.Option < 0 || v.Option >= len(p.Options) {
		r.log.Warn("vote option out of range", logx.String("poll_id", p.ID), logx.Int("option", v.Option))
		return out, nil
	}
	option := p.Options[v.Option]
	role, ok := ParseRole(option)
	if !ok {
		r.log.Warn("poll option has no role", logx.String("poll_id", p.ID), logx.String("option", option))
		return out, nil
	}
	out.Option = option

	prev, hadPrev := p.Votes[v.UserID]
	if holder, taken := p.Holder(option); taken && holder != v.UserID {
		if !hadPrev && r.claimsLegacy(p, holder, v) {
			return r.adoptLegacy(ctx, p, holder, role, v, out)
		}
		out.Kind = OutcomeRejected
		return out, nil
	}
	if hadPrev && prev == option {
		out.Kind = OutcomeUnchanged
		return out, nil
	}

	if hadPrev {
		if prevRole, ok := ParseRole(prev); ok {
			if err := r.store.SetRoleOccupant(ctx, p.ID, prevRole, nil); err != nil {
				return out, fmt.Errorf("clear %s on poll %s: %w", prevRole, p.ID, err)
			}
		}
		out.Previous = prev
	}
	if err := r.store.SetRoleOccupant(ctx, p.ID, role, &Occupant{UserID: v.UserID, Name: v.DisplayName}); err != nil {
		if hadPrev {
			// The old column is already cleared; drop the cached vote so the
			// cache matches the store.
			delete(p.Votes, v.UserID)
			delete(p.Names, v.UserID)
			r.log.Error("vote switch half-applied; user lost previous role",
				logx.String("poll_id", p.ID), logx.Int64("user_id", v.UserID),
				logx.String("previous", prev), logx.String("wanted", option), logx.Err(err))
		}
		return out, fmt.Errorf("assign %s on poll %s: %w", role, p.ID, err)
	}
	p.Votes[v.UserID] = option
	p.Names[v.UserID] = v.DisplayName

	out.Kind = OutcomeAssigned
	out.Free = r.freeRoles(ctx, p)
	return out, nil
}

// claimsLegacy reports whether v comes from the user named in a role column
// that was written without a user id.
func (r *Reconciler) claimsLegacy(p *Poll, holder int64, v Vote) bool {
	if !isLegacyHolder(holder) || v.DisplayName == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(p.Names[holder]), strings.TrimSpace(v.DisplayName))
}

// adoptLegacy moves a placeholder-held role to the voter's real user id.
func (r *Reconciler) adoptLegacy(ctx context.Context, p *Poll, holder int64, role Role, v Vote, out Outcome) (Outcome, error) {
	if err := r.store.SetRoleOccupant(ctx, p.ID, role, &Occupant{UserID: v.UserID, Name: v.DisplayName}); err != nil {
		return out, fmt.Errorf("adopt %s on poll %s: %w", role, p.ID, err)
	}
	delete(p.Votes, holder)
	delete(p.Names, holder)
	p.Votes[v.UserID] = out.Option
	p.Names[v.UserID] = v.DisplayName
	r.log.Info("legacy role occupant adopted",
		logx.String("poll_id", p.ID), logx.Int64("user_id", v.UserID), logx.String("option", out.Option))

	out.Kind = OutcomeUnchanged
	return out, nil
}

func (r *Reconciler) cancel(ctx context.Context, p *Poll, v Vote, out Outcome) (Outcome, error) {
	prev, had := p.Votes[v.UserID]
	if !had {
		return out, nil
	}
	if role, ok := ParseRole(prev); ok {
		if err := r.store.SetRoleOccupant(ctx, p.ID, role, nil); err != nil {
			return out, fmt.Errorf("clear %s on poll %s: %w", role, p.ID, err)
		}
	}
	delete(p.Votes, v.UserID)
	delete(p.Names, v.UserID)

	out.Kind = OutcomeCancelled
	out.Option = prev
	out.Free = r.freeRoles(ctx, p)
	return out, nil
}

// freeRoles re-reads the role columns so notices reflect what is stored.
func (r *Reconciler) freeRoles(ctx context.Context, p *Poll) []Role {
	cached := p.FreeRoles()
	sp, found, err := r.store.FindPoll(ctx, p.ID)
	if err != nil || !found {
		r.log.Warn("free roles read failed; using cache", logx.String("poll_id", p.ID), logx.Bool("found", found), logx.Err(err))
		return cached
	}
	stored := sp.FreeRoles()
	if joinRoles(stored) != joinRoles(cached) {
		r.log.Error("cache and store disagree on free roles",
			logx.String("poll_id", p.ID), logx.String("cache", joinRoles(cached)), logx.String("store", joinRoles(stored)))
	}
	return stored
}

package jam

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// NoOption marks a retracted vote.
const NoOption = -1

// Poll is one scheduled jam session.
type Poll struct {
	ID          string
	ChatID      int64
	MessageID   int
	Options     []string
	Votes       map[int64]string // user id -> option name
	Names       map[int64]string // user id -> display name of current voters
	ScheduledAt time.Time
}

func NewPoll(id string, chatID int64, messageID int, at time.Time) *Poll {
	return &Poll{
		ID:          id,
		ChatID:      chatID,
		MessageID:   messageID,
		Options:     DefaultOptions(),
		Votes:       map[int64]string{},
		Names:       map[int64]string{},
		ScheduledAt: at,
	}
}

func (p *Poll) Clone() Poll {
	cp := *p
	cp.Options = append([]string(nil), p.Options...)
	cp.Votes = make(map[int64]string, len(p.Votes))
	for k, v := range p.Votes {
		cp.Votes[k] = v
	}
	cp.Names = make(map[int64]string, len(p.Names))
	for k, v := range p.Names {
		cp.Names[k] = v
	}
	return cp
}

// Holder returns the user currently holding option.
func (p *Poll) Holder(option string) (int64, bool) {
	for uid, o := range p.Votes {
		if o == option {
			return uid, true
		}
	}
	return 0, false
}

// LegacyHolder is the placeholder voter for a role column that carries a
// name but no user id. Placeholder ids are negative and never collide with
// Telegram user ids.
func LegacyHolder(r Role) int64 { return -(int64(r) + 1) }

func isLegacyHolder(uid int64) bool { return uid < 0 }

// Occupants maps every occupied role to its occupant.
func (p *Poll) Occupants() map[Role]Occupant {
	out := map[Role]Occupant{}
	for uid, o := range p.Votes {
		r, ok := ParseRole(o)
		if !ok {
			continue
		}
		occ := Occupant{UserID: uid, Name: p.Names[uid]}
		if isLegacyHolder(uid) {
			occ.UserID = 0
		}
		out[r] = occ
	}
	return out
}

// FreeRoles lists unoccupied roles in option order.
func (p *Poll) FreeRoles() []Role {
	return freeRoles(p.Occupants())
}

func freeRoles(occ map[Role]Occupant) []Role {
	var out []Role
	for _, r := range Roles {
		if _, ok := occ[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// Occupant is the user assigned to a role.
type Occupant struct {
	UserID int64
	Name   string
}

// Record is the row written when a poll is created.
type Record struct {
	PollID      string
	ChatID      int64
	MessageID   int
	ScheduledAt time.Time
	Snapshot    []byte
}

// StoredPoll is a row as read back from the store.
type StoredPoll struct {
	Record
	Occupants map[Role]Occupant
}

// FreeRoles lists roles whose storage columns are empty.
func (sp StoredPoll) FreeRoles() []Role { return freeRoles(sp.Occupants) }

// Store persists polls. Role columns are addressed by Role only.
type Store interface {
	UpsertPoll(ctx context.Context, rec Record) error
	SetRoleOccupant(ctx context.Context, pollID string, role Role, occ *Occupant) error
	LoadAllPolls(ctx context.Context) ([]StoredPoll, error)
	FindPollsScheduledOn(ctx context.Context, day time.Time) ([]StoredPoll, error)
	FindPoll(ctx context.Context, pollID string) (StoredPoll, bool, error)
}

type snapshot struct {
	ChatID    int64            `json:"chat_id"`
	MessageID int              `json:"message_id"`
	Options   []string         `json:"options"`
	Votes     map[int64]string `json:"votes"`
	Names     map[int64]string `json:"names,omitempty"`
	Datetime  string           `json:"datetime"`
}

// Record serializes the poll for UpsertPoll.
func (p *Poll) Record() (Record, error) {
	b, err := json.Marshal(snapshot{
		ChatID:    p.ChatID,
		MessageID: p.MessageID,
		Options:   p.Options,
		Votes:     p.Votes,
		Names:     p.Names,
		Datetime:  p.ScheduledAt.Format(time.RFC3339),
	})
	if err != nil {
		return Record{}, fmt.Errorf("encode poll %s: %w", p.ID, err)
	}
	return Record{
		PollID:      p.ID,
		ChatID:      p.ChatID,
		MessageID:   p.MessageID,
		ScheduledAt: p.ScheduledAt,
		Snapshot:    b,
	}, nil
}

// PollFromStored rebuilds a cached poll from its row. Role columns are
// authoritative for votes; the snapshot only fills in voters of rows written
// without user ids. A named occupant with neither keeps its role under a
// LegacyHolder id until the named user votes again.
func PollFromStored(sp StoredPoll, loc *time.Location) (*Poll, error) {
	var snap snapshot
	if len(sp.Snapshot) > 0 {
		if err := json.Unmarshal(sp.Snapshot, &snap); err != nil {
			return nil, fmt.Errorf("decode poll %s: %w", sp.PollID, err)
		}
	}
	at := sp.ScheduledAt
	if at.IsZero() && snap.Datetime != "" {
		if t, err := time.Parse(time.RFC3339, snap.Datetime); err == nil {
			at = t
		}
	}
	if loc != nil {
		at = at.In(loc)
	}

	p := NewPoll(sp.PollID, sp.ChatID, sp.MessageID, at)
	if len(snap.Options) == len(Roles) {
		p.Options = snap.Options
	}
	for _, r := range Roles {
		occ, ok := sp.Occupants[r]
		if !ok {
			continue
		}
		uid := occ.UserID
		if uid == 0 {
			for suid, o := range snap.Votes {
				if o == r.String() {
					uid = suid
					break
				}
			}
		}
		if uid == 0 {
			uid = LegacyHolder(r)
		}
		p.Votes[uid] = r.String()
		p.Names[uid] = occ.Name
	}
	return p, nil
}

func sortPolls(ps []Poll) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].ScheduledAt.Equal(ps[j].ScheduledAt) {
			return ps[i].ScheduledAt.Before(ps[j].ScheduledAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

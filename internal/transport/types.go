package transport

import "context"

type UpdateKind string

const (
	UpdateMessage    UpdateKind = "message"
	UpdatePollAnswer UpdateKind = "poll_answer"
)

type Update struct {
	Kind       UpdateKind
	Message    *Message
	PollAnswer *PollAnswer
}

type Message struct {
	ID            int
	ChatID        int64
	ThreadID      int // telegram forum topic thread id (0 if none)
	FromID        int64
	FromUsername  string
	FromFirstName string
	Text          string
}

// PollAnswer is a user's current selection on a non-anonymous poll.
// Empty OptionIDs means the vote was retracted.
type PollAnswer struct {
	PollID    string
	UserID    int64
	Username  string
	FirstName string
	OptionIDs []int
}

// DisplayName returns the username, falling back to the first name.
func (p *PollAnswer) DisplayName() string {
	if p.Username != "" {
		return p.Username
	}
	return p.FirstName
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	ReplyTo        int // message id to reply to (0 = none)
}

// Poll describes a regular (non-quiz) poll to send.
type Poll struct {
	Question        string
	Options         []string
	Anonymous       bool
	MultipleAnswers bool
}

// PollRef identifies a sent poll and the message carrying it.
type PollRef struct {
	PollID string
	MessageRef
}

type MemberStatus string

const (
	MemberCreator       MemberStatus = "creator"
	MemberAdministrator MemberStatus = "administrator"
	MemberMember        MemberStatus = "member"
	MemberRestricted    MemberStatus = "restricted"
	MemberLeft          MemberStatus = "left"
	MemberKicked        MemberStatus = "kicked"
)

func (s MemberStatus) IsAdmin() bool {
	return s == MemberCreator || s == MemberAdministrator
}

type Notification struct {
	Target  ChatTarget
	Text    string
	Options *SendOptions
}

// Sender is the outbound half of an Adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendPoll(ctx context.Context, to ChatTarget, p Poll, opt *SendOptions) (PollRef, error)
	MemberStatus(ctx context.Context, chatID, userID int64) (MemberStatus, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

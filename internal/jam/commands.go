package jam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	kit "jambot/internal/transport"
	logx "jambot/pkg/logx"
)

var (
	ErrNotAdmin   = errors.New("only group admins can create a jam")
	ErrAdminCheck = errors.New("admin status lookup failed")
	ErrUsage      = errors.New("usage: /jam <day/date> <time>")
	ErrBadTime    = errors.New("invalid time format")
)

const usageText = "Usage: /jam <day/date> <time>\n" +
	"Examples:\n" +
	"/jam Friday 19:30\n" +
	"/jam 2025-06-07 18:00\n" +
	"/jam tomorrow 20:00"

type InvokerKind int

const (
	InvokerUser InvokerKind = iota
	InvokerScheduler
)

// Invoker identifies who triggered a command. Scheduler invocations skip
// the admin check.
type Invoker struct {
	Kind   InvokerKind
	UserID int64
}

func UserInvoker(id int64) Invoker { return Invoker{Kind: InvokerUser, UserID: id} }

var SchedulerInvoker = Invoker{Kind: InvokerScheduler}

func (i Invoker) String() string {
	if i.Kind == InvokerScheduler {
		return "scheduler"
	}
	return fmt.Sprintf("user:%d", i.UserID)
}

// Invocation is one /jam or /reminder call. MessageID is the command
// message to reply to; zero for scheduler runs.
type Invocation struct {
	Invoker   Invoker
	Chat      kit.ChatTarget
	MessageID int
	Args      []string
}

// Messenger is the slice of the Telegram adapter commands need.
type Messenger interface {
	kit.Sender
	SendPoll(ctx context.Context, to kit.ChatTarget, p kit.Poll, opt *kit.SendOptions) (kit.PollRef, error)
	MemberStatus(ctx context.Context, chatID, userID int64) (kit.MemberStatus, error)
}

type Commands struct {
	svc *Service
	m   Messenger
	log logx.Logger

	// Now is overridable in tests.
	Now func() time.Time
}

func NewCommands(svc *Service, m Messenger, log logx.Logger) *Commands {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Commands{svc: svc, m: m, log: log, Now: time.Now}
}

func (c *Commands) reply(ctx context.Context, inv Invocation, text string) {
	if inv.Chat.ChatID == 0 || c.m == nil {
		return
	}
	if _, err := c.m.SendText(ctx, inv.Chat, text, &kit.SendOptions{ReplyTo: inv.MessageID}); err != nil {
		c.log.Warn("command reply failed", logx.Int64("chat_id", inv.Chat.ChatID), logx.Err(err))
	}
}

func positional(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// CreateJam validates the invocation, sends the poll and registers it.
// Every rejection is answered in the chat and returned as a sentinel error.
func (c *Commands) CreateJam(ctx context.Context, inv Invocation) (*Poll, error) {
	if inv.Invoker.Kind == InvokerUser {
		st, err := c.m.MemberStatus(ctx, inv.Chat.ChatID, inv.Invoker.UserID)
		if err != nil {
			c.reply(ctx, inv, "⚠️ Failed to verify admin status.")
			return nil, fmt.Errorf("%w: %v", ErrAdminCheck, err)
		}
		if !st.IsAdmin() {
			c.reply(ctx, inv, "🚫 Only group admins can create a jam.")
			return nil, ErrNotAdmin
		}
	}

	args := positional(inv.Args)
	if len(args) != 2 {
		c.reply(ctx, inv, usageText)
		return nil, ErrUsage
	}
	day, clock := args[0], args[1]
	if !ValidClock(clock) {
		c.reply(ctx, inv, fmt.Sprintf("❌ Invalid time format: '%s'. Use HH:mm (e.g., 18:30).", clock))
		return nil, fmt.Errorf("%w: %q", ErrBadTime, clock)
	}

	loc := c.svc.Location()
	now := c.Now().In(loc)
	at, err := Resolve(day, clock, now, loc)
	if err != nil {
		c.reply(ctx, inv, fmt.Sprintf("❌ Could not understand date/time: '%s %s'", day, clock))
		return nil, err
	}
	if at.Before(now) {
		c.reply(ctx, inv, fmt.Sprintf("❌ '%s' is in the past.", at.Format("Monday 15:04")))
		return nil, fmt.Errorf("%w: %s", ErrPast, at.Format(time.RFC3339))
	}

	ref, err := c.m.SendPoll(ctx, inv.Chat, kit.Poll{
		Question: fmt.Sprintf("Who's in for the jam on %s at %s?", at.Format("Monday"), at.Format("15:04")),
		Options:  DefaultOptions(),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("send poll: %w", err)
	}

	p := NewPoll(ref.PollID, ref.ChatID, ref.MessageID, at)
	if err := c.svc.Register(ctx, p); err != nil {
		return nil, err
	}
	c.log.Info("jam created",
		logx.String("poll_id", p.ID), logx.Int64("chat_id", p.ChatID),
		logx.Time("at", at), logx.String("invoker", inv.Invoker.String()))
	return p, nil
}

// SendReminders queues a reminder for every jam scheduled today. It returns
// the number of reminders queued.
func (c *Commands) SendReminders(ctx context.Context, inv Invocation) (int, error) {
	today := c.Now().In(c.svc.Location())
	rems, err := c.svc.Reminders(ctx, today)
	if err != nil {
		return 0, err
	}
	if len(rems) == 0 {
		if inv.Chat.ChatID != 0 {
			c.reply(ctx, inv, "No jams scheduled for today 🎧")
		} else {
			c.log.Info("no jams scheduled for today", logx.String("day", today.Format(time.DateOnly)))
		}
		return 0, nil
	}

	if c.svc.notify == nil {
		return 0, errors.New("send reminders: no notifier")
	}
	var (
		sent int
		errs []error
	)
	for _, r := range rems {
		if err := c.svc.notify.Notify(ctx, r.Notification()); err != nil {
			errs = append(errs, fmt.Errorf("reminder for poll %s: %w", r.PollID, err))
			continue
		}
		sent++
	}
	c.log.Info("reminders queued", logx.Int("count", sent), logx.String("invoker", inv.Invoker.String()))
	return sent, errors.Join(errs...)
}

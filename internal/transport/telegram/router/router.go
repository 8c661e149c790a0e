package router

import (
	"context"
	"strings"
	"sync"
	"time"

	kit "jambot/internal/transport"
	logx "jambot/pkg/logx"
)

type Command struct {
	Name        string   // without the leading slash, e.g. "jam"
	Aliases     []string // e.g. ["j"]
	Description string
	Usage       string
	Timeout     time.Duration // overrides the router default
	Handle      HandlerFunc
}

// PollAnswerFunc receives poll answers in delivery order.
type PollAnswerFunc func(ctx context.Context, pa *kit.PollAnswer, log logx.Logger) error

type Request struct {
	Update    kit.Update
	Chat      kit.ChatTarget
	MessageID int
	FromID    int64
	FromName  string
	Command   string
	Args      []string // positionals

	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Sender kit.Sender
	Logger logx.Logger
}

// Reply answers the command message.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if opt.ReplyTo == 0 {
		opt.ReplyTo = r.MessageID
	}
	_, err := r.Sender.SendText(ctx, r.Chat, text, opt)
	return err
}

// Router routes updates: slash commands to their handlers and poll answers
// to a single callback. All updates are handled on the DispatchLoop
// goroutine, one at a time.
type Router struct {
	mu     sync.RWMutex
	cmds   map[string]*Command
	order  []*Command
	onPoll PollAnswerFunc

	log     logx.Logger
	sender  kit.Sender
	timeout time.Duration
}

func New(sender kit.Sender, timeout time.Duration, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Router{
		cmds:    map[string]*Command{},
		log:     log,
		sender:  sender,
		timeout: timeout,
	}
}

// SetCommands replaces the command registry. /help is always added.
func (rt *Router) SetCommands(cmds []Command) {
	help := Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "show available commands",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, rt.helpText(), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
		},
	}
	cmds = append(cmds, help)

	reg := map[string]*Command{}
	order := make([]*Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		order = append(order, &cc)
		reg[name] = &cc
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := reg[a]; !exists {
				reg[a] = &cc
			}
		}
	}

	rt.mu.Lock()
	rt.cmds = reg
	rt.order = order
	rt.mu.Unlock()
}

func (rt *Router) OnPollAnswer(fn PollAnswerFunc) {
	rt.mu.Lock()
	rt.onPoll = fn
	rt.mu.Unlock()
}

// Commands returns registered commands in registration order.
func (rt *Router) Commands() []Command {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]Command, 0, len(rt.order))
	for _, c := range rt.order {
		out = append(out, *c)
	}
	return out
}

// UpdateMenu pushes the command list to adapters that support a command
// menu.
func (rt *Router) UpdateMenu(ctx context.Context, up kit.CommandMenuUpdater) error {
	return up.UpdateMenuCommands(ctx, buildMenuCommands(rt.Commands()))
}

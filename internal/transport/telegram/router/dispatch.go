package router

import (
	"context"
	"strings"

	kit "jambot/internal/transport"
	logx "jambot/pkg/logx"
)

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (rt *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	rt.log.Info("dispatcher started", logx.Int("queue_cap", cap(updates)))
	for {
		select {
		case <-ctx.Done():
			rt.log.Info("dispatcher stopped", logx.Err(ctx.Err()))
			return nil
		case up, ok := <-updates:
			if !ok {
				rt.log.Info("dispatcher stopped (updates channel closed)")
				return nil
			}
			rt.route(ctx, up)
		}
	}
}

func (rt *Router) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		rt.routeMessage(ctx, up)
	case kit.UpdatePollAnswer:
		rt.routePollAnswer(ctx, up)
	}
}

func (rt *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	// "/jam@SomeBot" in groups
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}

	rt.mu.RLock()
	cmd, ok := rt.cmds[word]
	rt.mu.RUnlock()
	if !ok {
		// Other bots in the group own other commands.
		rt.log.Debug("unknown command ignored", logx.String("cmd", word), logx.Int64("chat_id", msg.ChatID))
		return
	}

	raw := parts[1:]
	pos, flags, bools := parseFlags(raw)
	rid := newReqID()
	from := msg.FromUsername
	if from == "" {
		from = msg.FromFirstName
	}
	req := &Request{
		Update:    up,
		Chat:      kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		MessageID: msg.ID,
		FromID:    msg.FromID,
		FromName:  from,
		Command:   cmd.Name,
		Args:      pos,
		RawArgs:   raw,
		Flags:     flags,
		BoolFlags: bools,
		ReqID:     rid,
		Sender:    rt.sender,
		Logger: rt.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = rt.timeout
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(rt.log),
		MWRequestLog(rt.log),
		MWTimeout(timeout),
	)
	_ = final(ctx, req)
}

func (rt *Router) routePollAnswer(ctx context.Context, up kit.Update) {
	pa := up.PollAnswer
	if pa == nil {
		return
	}
	rt.mu.RLock()
	fn := rt.onPoll
	rt.mu.RUnlock()
	if fn == nil {
		return
	}
	rid := newReqID()
	log := rt.log.With(logx.String("rid", rid), logx.String("poll_id", pa.PollID), logx.Int64("user_id", pa.UserID))
	req := &Request{Update: up, FromID: pa.UserID, FromName: pa.DisplayName(), Command: "poll_answer", ReqID: rid, Sender: rt.sender, Logger: log}
	h := func(c context.Context, r *Request) error { return fn(c, pa, r.Logger) }
	final := Chain(h,
		MWPanicRecover(rt.log),
		MWRequestLog(rt.log),
		MWTimeout(rt.timeout),
	)
	_ = final(ctx, req)
}

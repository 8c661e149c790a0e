package app

import (
	"context"
	"errors"

	"jambot/internal/config"
	"jambot/internal/jam"
	"jambot/internal/task/scheduler"
	kit "jambot/internal/transport"
	"jambot/internal/transport/telegram/router"
	logx "jambot/pkg/logx"
)

const (
	jobCreate   = "jam.create"
	jobReminder = "jam.reminder"
)

const genericFailure = "⚠️ Something went wrong, please try again later."

func (a *App) commands() []router.Command {
	return []router.Command{
		{
			Name:        "jam",
			Description: "create a jam poll (admins)",
			Usage:       "/jam <day/date> <HH:MM>",
			Handle:      a.handleJam,
		},
		{
			Name:        "reminder",
			Description: "remind today's jam line-up",
			Usage:       "/reminder",
			Handle:      a.handleReminder,
		},
	}
}

func userInvocation(req *router.Request) jam.Invocation {
	return jam.Invocation{
		Invoker:   jam.UserInvoker(req.FromID),
		Chat:      req.Chat,
		MessageID: req.MessageID,
		Args:      req.RawArgs,
	}
}

// answeredByCommand reports errors that CreateJam already explained to the
// user.
func answeredByCommand(err error) bool {
	for _, target := range []error{jam.ErrNotAdmin, jam.ErrAdminCheck, jam.ErrUsage, jam.ErrBadTime, jam.ErrUnparseable, jam.ErrPast} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (a *App) handleJam(ctx context.Context, req *router.Request) error {
	_, err := a.cmds.CreateJam(ctx, userInvocation(req))
	if err == nil {
		return nil
	}
	if answeredByCommand(err) {
		req.Logger.Debug("jam rejected", logx.Err(err))
		return nil
	}
	_ = req.Reply(ctx, genericFailure, nil)
	return err
}

func (a *App) handleReminder(ctx context.Context, req *router.Request) error {
	_, err := a.cmds.SendReminders(ctx, userInvocation(req))
	if err != nil {
		_ = req.Reply(ctx, genericFailure, nil)
	}
	return err
}

func voteFromAnswer(pa *kit.PollAnswer) jam.Vote {
	v := jam.Vote{
		PollID:      pa.PollID,
		UserID:      pa.UserID,
		DisplayName: pa.DisplayName(),
		Option:      jam.NoOption,
	}
	if len(pa.OptionIDs) > 0 {
		v.Option = pa.OptionIDs[0]
	}
	return v
}

func (a *App) onPollAnswer(ctx context.Context, pa *kit.PollAnswer, log logx.Logger) error {
	out, err := a.jams.HandleVote(ctx, voteFromAnswer(pa))
	if err != nil {
		return err
	}
	log.Debug("vote handled", logx.String("outcome", out.Kind.String()))
	return nil
}

// registerJobs (re)binds the two cron jobs to the current config.
func (a *App) registerJobs(cfg *config.Config) error {
	chat := kit.ChatTarget{ChatID: cfg.Jam.ChatID}
	day, clock := cfg.Jam.AutoDay, cfg.Jam.AutoTime

	create := func(ctx context.Context, run scheduler.Run) error {
		if chat.ChatID == 0 {
			a.log.Warn("scheduled jam skipped: jam.chat_id not set", logx.String("run_id", run.ID))
			return nil
		}
		_, err := a.cmds.CreateJam(ctx, jam.Invocation{
			Invoker: jam.SchedulerInvoker,
			Chat:    chat,
			Args:    []string{day, clock},
		})
		return err
	}
	remind := func(ctx context.Context, run scheduler.Run) error {
		_, err := a.cmds.SendReminders(ctx, jam.Invocation{Invoker: jam.SchedulerInvoker})
		return err
	}

	if err := a.sched.AddCron(jobCreate, cfg.Scheduler.CreateSpec, create); err != nil {
		return err
	}
	return a.sched.AddCron(jobReminder, cfg.Scheduler.ReminderSpec, remind)
}

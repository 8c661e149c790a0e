// Package notifier queues outbound chat messages and sends them through a
// kit.Sender at a bounded rate.
//
// Vote notices and reminders can arrive in bursts (a poll fills up, the
// reminder job covers several chats). A single worker drains the queue and
// waits on a token bucket before each send so the bot stays under Telegram's
// per-group flood limits. Failed sends are logged and reported on the event
// bus; they are not retried.
package notifier

package adapter

import "time"

type Config struct {
	Token       string
	PollTimeout time.Duration
	// UpdateBuffer is advisory; the app sizes the update channel.
	UpdateBuffer int
}

// allowedUpdates is the getUpdates filter. "poll" is kept so poll state
// changes are acknowledged even though only answers are routed.
var allowedUpdates = []string{"message", "poll", "poll_answer"}

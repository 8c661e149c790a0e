// Package jam implements the weekly jam poll: role slots, the in-memory poll
// cache, vote reconciliation and the /jam and /reminder commands.
//
// All reads and writes of poll state go through Service, whose Run loop is
// the only goroutine that touches the cache and issues poll-state
// statements to the Store. Telegram calls (admin lookup, sending polls and
// notices) are made outside that loop.
package jam

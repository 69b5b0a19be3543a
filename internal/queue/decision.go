// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package queue

import "time"

// Decision is a consumer's verdict on a delivered message. It drives the
// JetStream acknowledgement: acknowledged messages are settled, retried
// messages are negatively acknowledged and redelivered, optionally after
// a requested delay.
type Decision struct {
	ack   bool
	delay time.Duration
}

// Ack marks the message as fully processed. It is never redelivered.
func Ack() Decision {
	return Decision{ack: true}
}

// Retry schedules redelivery after the broker's default backoff.
func Retry() Decision {
	return Decision{}
}

// RetryAfter schedules redelivery no sooner than delay.
func RetryAfter(delay time.Duration) Decision {
	return Decision{delay: delay}
}

// Acked reports whether the decision settles the message.
func (d Decision) Acked() bool {
	return d.ack
}

// Delay returns the requested redelivery delay. Zero means the broker's
// default backoff applies.
func (d Decision) Delay() time.Duration {
	return d.delay
}

// String returns the decision name for logging and metrics labels.
func (d Decision) String() string {
	switch {
	case d.ack:
		return "ack"
	case d.delay > 0:
		return "retry_delayed"
	default:
		return "retry"
	}
}

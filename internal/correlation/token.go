// Package correlation implements request/reply over asynchronous queues: a
// job is tagged with a token, dispatched to a work channel, and its reply is
// picked out of a shared reply channel by that token.
package correlation

import "github.com/google/uuid"

// Job is one unit of work. CorrelationToken must be unique among outstanding
// jobs.
type Job struct {
	ProfileReference string
	CorrelationToken string
}

// Generator produces correlation tokens.
type Generator func() string

// NewToken returns a random 128-bit UUIDv4 string.
func NewToken() string {
	return uuid.NewString()
}

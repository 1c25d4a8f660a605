package service

import "sync/atomic"

// Counters tracks delivery outcomes for the admin stats endpoint.
type Counters struct {
	Accepted           atomic.Int64
	Duplicates         atomic.Int64
	UnknownTopics      atomic.Int64
	AuthFailures       atomic.Int64
	ValidationFailures atomic.Int64
	StorageFailures    atomic.Int64
	Replayed           atomic.Int64
	ReplayFailures     atomic.Int64
}

// recordFailure bumps the counter matching err's kind.
func (c *Counters) recordFailure(err error) {
	switch KindName(err) {
	case "authentication":
		c.AuthFailures.Add(1)
	case "validation":
		c.ValidationFailures.Add(1)
	case "storage":
		c.StorageFailures.Add(1)
	}
}

// Snapshot returns the current values.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"accepted":            c.Accepted.Load(),
		"duplicates":          c.Duplicates.Load(),
		"unknown_topics":      c.UnknownTopics.Load(),
		"auth_failures":       c.AuthFailures.Load(),
		"validation_failures": c.ValidationFailures.Load(),
		"storage_failures":    c.StorageFailures.Load(),
		"replayed":            c.Replayed.Load(),
		"replay_failures":     c.ReplayFailures.Load(),
	}
}

package config

import "github.com/a7mdelbanna/classboom/internal/core"

// ServiceOptions converts the import settings into core service options.
func (c ImportConfig) ServiceOptions() core.ServiceOptions {
	return core.ServiceOptions{
		Limits: core.Limits{
			MaxFileSize: c.MaxFileSize,
			MaxRows:     c.MaxRows,
		},
		BatchSize:     c.BatchSize,
		Concurrency:   c.Concurrency,
		MaxConcurrent: c.MaxConcurrent,
		MaxWait:       c.MaxWaitTime,
		ImportTimeout: c.Timeout,
		SessionTTL:    c.SessionTTL,
	}
}

// CommitOptions returns the batch settings of a synchronous commit.
func (c ImportConfig) CommitOptions() core.CommitOptions {
	return core.CommitOptions{
		BatchSize:   c.BatchSize,
		Concurrency: c.Concurrency,
	}
}

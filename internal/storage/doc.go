// Package storage keeps the outcome log: one record per publish attempt.
//
// Pending tasks are never persisted; only finished attempts are. Records
// older than the configured retention are pruned on a cron schedule.
package storage

package service

import (
	"os"
	"strconv"
	"time"
)

const defaultRetentionDays = 30

// RetentionStore is the slice of the store the sweep needs.
type RetentionStore interface {
	PurgeAnonymousBefore(cutoff time.Time) (int64, error)
}

// PurgeStaleConversations deletes anonymous conversations idle longer than
// RETENTION_DAYS. Authenticated users keep their history; anonymous session
// tokens are browser-local and eventually orphaned.
func PurgeStaleConversations(store RetentionStore) {
	logger.Infof("[%s] Start scheduled task PurgeStaleConversations", "scheduled task")
	startTime := time.Now()

	days := defaultRetentionDays
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			days = parsed
		}
	}
	cutoff := time.Now().Add(time.Duration(-days) * 24 * time.Hour)

	purged, err := store.PurgeAnonymousBefore(cutoff)
	if err != nil {
		logger.Warnf("[%s] purge failed, %s", "scheduled task", err)
		return
	}
	logger.Infof("[%s] Finished scheduled task PurgeStaleConversations, purged %d conversations in %v",
		"scheduled task", purged, time.Since(startTime))
}

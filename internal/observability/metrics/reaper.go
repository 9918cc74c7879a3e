package metrics

// Reaper metric names.
const (
	NameReaperCleanup          = "reaper.cleanup"
	NameReaperCleanupDuration  = "reaper.cleanup_duration"
	NameReaperCleanupOperation = "reaper.cleanup_operation"
	NameReaperJobsProcessed    = "reaper.jobs_processed"
	NameReaperLastSuccess      = "reaper.last_success_epoch"
)

// Reaper cleanup operations.
const (
	OperationFailExpiredLeases = "fail_expired_leases"
	OperationRedispatchStale   = "redispatch_stale"
)

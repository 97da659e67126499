package tracehook

// Trace steps. Each constant corresponds to one ext lifecycle hook and
// becomes the Name field of the recorded step.
const (
	StepSubmitted           = "submitted"
	StepWorkerClaimed       = "worker_claimed"
	StepWorkerProcessing    = "worker_processing"
	StepWorkerAttemptFailed = "worker_attempt_failed"
	StepWorkerCompleted     = "worker_completed"
	StepWorkerFailed        = "worker_failed"
	StepReclaimRequeued     = "reclaim_requeued"
	StepReclaimExhausted    = "reclaim_exhausted"
)

// AllSteps returns every step this extension can record.
func AllSteps() []string {
	return []string{
		StepSubmitted,
		StepWorkerClaimed,
		StepWorkerProcessing,
		StepWorkerAttemptFailed,
		StepWorkerCompleted,
		StepWorkerFailed,
		StepReclaimRequeued,
		StepReclaimExhausted,
	}
}

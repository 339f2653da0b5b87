package model

// JobStatus represents the server-side state of an inference job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal returns true if no further state change is expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Known reports whether the status is one the client understands.
func (s JobStatus) Known() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// ModelInfo describes an inference model available on the server.
type ModelInfo struct {
	Name   string `json:"name"`
	Loaded bool   `json:"loaded"`
}

// ModelsListResponse is returned by GET /api/v1/models.
type ModelsListResponse struct {
	Models []ModelInfo `json:"models"`
}

// InferenceUploadResponse is returned when a CSV is submitted for inference.
type InferenceUploadResponse struct {
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
	Model   string    `json:"model"`
	Message string    `json:"message"`
}

// PricePrediction is the payload of a completed inference job.
type PricePrediction struct {
	CurrentPrice      float64   `json:"current_price"`
	PredictionHorizon int       `json:"prediction_horizon"`
	PredictedPrices   []float64 `json:"predicted_prices"`
}

// InferenceJob is the wire form of GET /api/v1/result/{job_id}.
// Result is set only when completed; Error only when failed. Timestamps are
// kept as sent, since the server emits ISO 8601 without a zone.
type InferenceJob struct {
	JobID       string           `json:"job_id"`
	Status      JobStatus        `json:"status"`
	Model       string           `json:"model,omitempty"`
	Result      *PricePrediction `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	SubmittedAt string           `json:"submitted_at,omitempty"`
	CompletedAt string           `json:"completed_at,omitempty"`
}

// JobOutcome is the closed set of job states: Pending, Processing,
// Completed and Failed. Use a type switch to handle each case.
type JobOutcome interface {
	jobOutcome()
}

// Pending means the job is queued on the server.
type Pending struct{}

// Processing means the job is running.
type Processing struct{}

// Completed carries the prediction of a finished job.
type Completed struct {
	Result PricePrediction
}

// Failed carries the server's failure message.
type Failed struct {
	Error string
}

func (Pending) jobOutcome()    {}
func (Processing) jobOutcome() {}
func (Completed) jobOutcome()  {}
func (Failed) jobOutcome()     {}

// Outcome converts the wire status into a JobOutcome. Unrecognized
// statuses map to Processing, since they are not terminal.
func (j *InferenceJob) Outcome() JobOutcome {
	switch j.Status {
	case JobStatusPending:
		return Pending{}
	case JobStatusCompleted:
		var res PricePrediction
		if j.Result != nil {
			res = *j.Result
		}
		return Completed{Result: res}
	case JobStatusFailed:
		msg := j.Error
		if msg == "" {
			msg = "inference failed"
		}
		return Failed{Error: msg}
	default:
		return Processing{}
	}
}

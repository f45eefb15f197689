package domain

import "time"

// JobStatus enumerates video job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// Valid reports whether s is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusComplete, JobStatusError:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a record in state s may move to next.
// processing -> processing is allowed so a redelivered message can resume.
// queued -> error covers a submission whose publish step failed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing || next == JobStatusError
	case JobStatusProcessing:
		return next == JobStatusProcessing || next == JobStatusComplete || next == JobStatusError
	default:
		return false
	}
}

// SourceStates lists the states from which next can be reached.
func SourceStates(next JobStatus) []JobStatus {
	var out []JobStatus
	for _, s := range []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusComplete, JobStatusError} {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// JobRecord is the status document clients poll. VideoURL is set only when
// complete and ErrorMessage only when failed.
type JobRecord struct {
	JobID        string     `json:"jobId" firestore:"jobId"`
	Status       JobStatus  `json:"status" firestore:"status"`
	VideoURL     string     `json:"videoUrl,omitempty" firestore:"videoUrl,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty" firestore:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt" firestore:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty" firestore:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty" firestore:"finishedAt,omitempty"`
}

// NewQueuedRecord builds the initial record written before a job is published.
func NewQueuedRecord(jobID string, now time.Time) *JobRecord {
	return &JobRecord{
		JobID:     jobID,
		Status:    JobStatusQueued,
		CreatedAt: now.UTC(),
	}
}

// Apply mutates the record for a transition. Callers check CanTransitionTo first.
func (r *JobRecord) Apply(next JobStatus, detail string, at time.Time) {
	at = at.UTC()
	switch next {
	case JobStatusProcessing:
		if r.StartedAt == nil {
			r.StartedAt = &at
		}
	case JobStatusComplete:
		r.VideoURL = detail
		r.ErrorMessage = ""
		r.FinishedAt = &at
	case JobStatusError:
		r.ErrorMessage = detail
		r.VideoURL = ""
		r.FinishedAt = &at
	}
	r.Status = next
}

// Clone returns a deep copy so stores can hand out records without aliasing.
func (r *JobRecord) Clone() *JobRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}

// JobRequest is the immutable message carried by the work queue.
type JobRequest struct {
	JobID       string    `json:"jobId"`
	CardData    CardData  `json:"cardData"`
	Prompt      string    `json:"prompt"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// QueueMessage is a single delivery handed to a consumer handler.
type QueueMessage struct {
	ID         string
	Data       []byte
	Deliveries int
}

package models

// Status is the lifecycle state of a captcha job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

var validTransitions = map[Status][]Status{
	StatusProcessing: {StatusCompleted, StatusError},
}

// ValidTransition reports whether a job may move from one status to another.
func ValidTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// JobRecord tracks one extraction job. The API returns a captcha_id on POST /upload;
// the client polls GET /result/{captcha_id} until status is completed or error.
// Result is nil while processing, the extracted text on completion, and a
// human-readable failure description on error.
type JobRecord struct {
	Status Status  `json:"status"`
	Result *string `json:"result"`
}

// NewProcessingRecord returns the initial record written at submission time.
func NewProcessingRecord() JobRecord {
	return JobRecord{Status: StatusProcessing}
}

// Complete moves the record to the completed state with the extracted text.
func (r *JobRecord) Complete(text string) {
	r.Status = StatusCompleted
	r.Result = &text
}

// Fail moves the record to the error state with a description of the failure.
func (r *JobRecord) Fail(msg string) {
	r.Status = StatusError
	r.Result = &msg
}

// ResultText returns the result or "" when absent.
func (r JobRecord) ResultText() string {
	if r.Result == nil {
		return ""
	}
	return *r.Result
}

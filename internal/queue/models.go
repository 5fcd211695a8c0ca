package queue

import "time"

// JobStatus represents the lifecycle of a single batch job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// AttemptCounter is the counter row shared by every stage for retry accounting.
const AttemptCounter = "attempt"

// StageRecord is the persisted lifecycle state of one stage.
type StageRecord struct {
	Name         string
	State        string
	Phase        string
	Batches      int
	Budget       int64
	ErrorMessage string
	UpdatedAt    time.Time
}

// Job is one dispatched batch. Token fences outputs: only the artifact whose
// name carries the current token is accepted for the batch.
type Job struct {
	ID           int64
	Stage        string
	BatchIndex   int
	BeginID      int
	EndID        int
	Status       JobStatus
	Token        string
	Handle       string
	OutputPath   string
	LogPath      string
	Attempts     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Failure records one batch that produced no output for a given attempt.
type Failure struct {
	ID         int64
	Stage      string
	BatchIndex int
	BeginID    int
	EndID      int
	Attempt    int
	Token      string
	LogPath    string
	Message    string
	CreatedAt  time.Time
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	MissingTables    []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

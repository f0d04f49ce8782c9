package event

type Type string

const (
	TypeJobStarted   Type = "job.started"
	TypeJobProgress  Type = "job.progress"
	TypeJobCompleted Type = "job.completed"
	TypeJobFailed    Type = "job.failed"
)

type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"type"`
	Subject   string      `json:"subject"` // job id the event belongs to
	Payload   interface{} `json:"payload"`
	Timestamp string      `json:"timestamp"`
	ActorID   string      `json:"actor_id,omitempty"` // principal that owns the subject
}

// Terminal reports whether no further events follow for the subject.
func (e Event) Terminal() bool {
	return e.Type == TypeJobCompleted || e.Type == TypeJobFailed
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type EnqueueRequest struct {
	ClientID string
	Text     string
}

// TranslationJob translates one caption text for every client that asked
// for it while the job was outstanding.
type TranslationJob struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Subscribers []string  `json:"subscribers"`
	Status      Status    `json:"status"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	Cause       error     `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

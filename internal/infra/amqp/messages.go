package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

// BackupJobMessage is the wire form of a backup job. The worker loads the
// transactions itself, so only the job coordinates travel.
type BackupJobMessage struct {
	JobID       string    `json:"jobId"`
	UserID      string    `json:"userId"`
	Format      string    `json:"format"`
	RequestedAt time.Time `json:"requestedAt"`
	PublishedAt time.Time `json:"publishedAt"`
}

// NewBackupJobMessage wraps a job for publishing.
func NewBackupJobMessage(job *domain.BackupJob) *BackupJobMessage {
	return &BackupJobMessage{
		JobID:       job.ID,
		UserID:      job.UserID,
		Format:      string(job.Format),
		RequestedAt: job.RequestedAt,
		PublishedAt: time.Now(),
	}
}

// ToJSON encodes the message.
func (m *BackupJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Job converts the message back into a domain job.
func (m *BackupJobMessage) Job() *domain.BackupJob {
	return &domain.BackupJob{
		ID:          m.JobID,
		UserID:      m.UserID,
		Format:      domain.ExportFormat(m.Format),
		RequestedAt: m.RequestedAt,
	}
}

// BackupJobMessageFromJSON decodes and checks a message body.
func BackupJobMessageFromJSON(data []byte) (*BackupJobMessage, error) {
	var msg BackupJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID == "" || msg.UserID == "" {
		return nil, fmt.Errorf("backup job message missing jobId or userId")
	}
	return &msg, nil
}

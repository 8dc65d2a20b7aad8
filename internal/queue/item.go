package queue

import (
	"encoding/json"

	"github.com/flyingrobots/vqa-workqueue/internal/analysisconfig"
)

// QueueItem is the payload for the 21 analysis queues.
type QueueItem struct {
	TaskID  string                 `json:"task_id"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

func (i QueueItem) Marshal() (string, error) {
	b, err := json.Marshal(i)
	return string(b), err
}

func UnmarshalQueueItem(s string) (QueueItem, error) {
	var i QueueItem
	err := json.Unmarshal([]byte(s), &i)
	return i, err
}

// CorrectiveQueueItem is the payload for the 63 corrective queues.
type CorrectiveQueueItem struct {
	TaskID         string                       `json:"task_id"`
	AnalysisType   analysisconfig.AnalysisType  `json:"analysis_type"`
	Stage          analysisconfig.QAStage       `json:"stage"`
	OriginalOutput string                       `json:"original_output"`
	ImageB64       *string                      `json:"image_b64,omitempty"`
	Meta           map[string]interface{}       `json:"meta,omitempty"`
}

func (i CorrectiveQueueItem) Marshal() (string, error) {
	b, err := json.Marshal(i)
	return string(b), err
}

func UnmarshalCorrectiveQueueItem(s string) (CorrectiveQueueItem, error) {
	var i CorrectiveQueueItem
	err := json.Unmarshal([]byte(s), &i)
	return i, err
}

// ManagementQueueItem is the payload for the 3 operator-visible queues.
type ManagementQueueItem struct {
	TaskID   string                 `json:"task_id"`
	Reason   string                 `json:"reason"`
	Priority *int                   `json:"priority,omitempty"`
	BatchID  *string                `json:"batch_id,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
}

func (i ManagementQueueItem) Marshal() (string, error) {
	b, err := json.Marshal(i)
	return string(b), err
}

func UnmarshalManagementQueueItem(s string) (ManagementQueueItem, error) {
	var i ManagementQueueItem
	err := json.Unmarshal([]byte(s), &i)
	return i, err
}

package scheduler

import (
	"encoding/json"

	"leadflow_backend/internal/email"

	"github.com/hibiken/asynq"
)

const TaskWorkflowSweep = "workflow:sweep"

const TaskEmailSend = "email:send"

type WorkflowSweepPayload struct {
	RequestedBy string `json:"requestedBy,omitempty"`
}

func NewWorkflowSweepTask(payload WorkflowSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWorkflowSweep, data), nil
}

func ParseWorkflowSweepPayload(task *asynq.Task) (WorkflowSweepPayload, error) {
	var payload WorkflowSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return WorkflowSweepPayload{}, err
	}
	return payload, nil
}

func NewEmailSendTask(msg email.Message) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEmailSend, data), nil
}

func ParseEmailSendPayload(task *asynq.Task) (email.Message, error) {
	var msg email.Message
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		return email.Message{}, err
	}
	return msg, nil
}

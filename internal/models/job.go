package models

import "time"

type JobStatus string

const (
	StatusActive    JobStatus = "active"
	StatusPaused    JobStatus = "paused"
	StatusCompleted JobStatus = "completed"
)

const (
	MinBatchSize = 10
	MaxBatchSize = 10000
)

func (s JobStatus) String() string {
	return string(s)
}

func (s JobStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

// ValidTransitions lists the status changes a stored job row may go through.
// Creation and deletion are not transitions: a job row is inserted as active
// and removed on cancel or completion.
var ValidTransitions = []Transition{
	{From: StatusActive, To: StatusPaused},
	{From: StatusPaused, To: StatusActive},
	{From: StatusActive, To: StatusCompleted},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Job is the singleton bulk mail campaign.
type Job struct {
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Status    JobStatus `json:"status"`
	BatchSize int       `json:"batch_size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StartRequest is what an operator submits to begin a campaign.
type StartRequest struct {
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
	Roles        []string `json:"roles"`
	UnloggedOnly bool     `json:"unlogged_only"`
	BatchSize    int      `json:"batch_size"`
}

// JobView is the operator facing snapshot of the current campaign.
type JobView struct {
	Status       string `json:"status"`
	Subject      string `json:"subject,omitempty"`
	BatchSize    int    `json:"batch_size,omitempty"`
	Remaining    int    `json:"remaining"`
	TriggerArmed bool   `json:"trigger_armed"`
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		want   bool
	}{
		{name: "active", status: StatusActive, want: true},
		{name: "paused", status: StatusPaused, want: true},
		{name: "completed", status: StatusCompleted, want: true},
		{name: "empty", status: "", want: false},
		{name: "unknown", status: "running", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsValid())
		})
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name string
		from JobStatus
		to   JobStatus
		want bool
	}{
		{name: "pause", from: StatusActive, to: StatusPaused, want: true},
		{name: "resume", from: StatusPaused, to: StatusActive, want: true},
		{name: "complete", from: StatusActive, to: StatusCompleted, want: true},
		{name: "pause twice", from: StatusPaused, to: StatusPaused, want: false},
		{name: "complete while paused", from: StatusPaused, to: StatusCompleted, want: false},
		{name: "revive completed", from: StatusCompleted, to: StatusActive, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidTransition(tt.from, tt.to))
		})
	}
}

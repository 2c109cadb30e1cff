package store

import (
	"fmt"
	"strconv"
	"strings"
)

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusClosed     Status = "CLOSED"
)

// Statuses lists every partition in the order they are read and written.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusClosed}

const (
	MinPriority = 0
	MaxPriority = 5
)

type Task struct {
	ID          int    `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Priority    int    `json:"priority" yaml:"priority"`
	Description string `json:"description" yaml:"description"`
	Status      Status `json:"status" yaml:"status"`
}

// ReopenFunc is asked whether a CLOSED task should go back to IN_PROGRESS.
// It is never called for tasks in any other state.
type ReopenFunc func(t Task) (bool, error)

// Active reports whether the status belongs to the default listing.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusInProgress
}

func ValidPriority(p int) bool {
	return p >= MinPriority && p <= MaxPriority
}

// Transition is the workflow state machine:
//
//	OPEN -> IN_PROGRESS -> CLOSED
//	CLOSED -> IN_PROGRESS when reopen is true, otherwise CLOSED
func Transition(current Status, reopen bool) Status {
	switch current {
	case StatusOpen:
		return StatusInProgress
	case StatusInProgress:
		return StatusClosed
	case StatusClosed:
		if reopen {
			return StatusInProgress
		}
		return StatusClosed
	default:
		return current
	}
}

// NextID returns the id for a new task: one more than the largest id in tasks
// or floor, whichever is greater. An empty collection with floor 0 yields 1.
func NextID(tasks map[int]Task, floor int) int {
	highest := floor
	for id := range tasks {
		if id > highest {
			highest = id
		}
	}
	return highest + 1
}

// ParseID converts a user-supplied id such as "12" or "#12".
func ParseID(s string) (int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: task id must be a positive integer, got %q", ErrInvalid, s)
	}
	return id, nil
}

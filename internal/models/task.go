package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is a task lifecycle status. Values are the persisted labels.
type Status string

// Task status constants
const (
	StatusToDo            Status = "To Do"
	StatusInProgress      Status = "In Progress"
	StatusDone            Status = "Done"
	StatusPendingApproval Status = "Pending Approval"
	StatusCompleted       Status = "Completed"
	StatusRejected        Status = "Rejected"
	StatusNeedsRevision   Status = "Needs Revision"
)

// InitialStatus is the status every task is created in.
const InitialStatus = StatusToDo

// Statuses returns the full status vocabulary in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusToDo,
		StatusInProgress,
		StatusDone,
		StatusPendingApproval,
		StatusCompleted,
		StatusRejected,
		StatusNeedsRevision,
	}
}

// statusAliases maps normalized spellings found in older clients to the
// canonical vocabulary.
var statusAliases = map[string]Status{
	"to do":            StatusToDo,
	"todo":             StatusToDo,
	"pending":          StatusToDo,
	"in progress":      StatusInProgress,
	"done":             StatusDone,
	"pending approval": StatusPendingApproval,
	"completed":        StatusCompleted,
	"rejected":         StatusRejected,
	"needs revision":   StatusNeedsRevision,
}

// ParseStatus converts a user supplied label into a Status.
func ParseStatus(s string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")
	if st, ok := statusAliases[key]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Valid reports whether s belongs to the vocabulary.
func (s Status) Valid() bool {
	for _, st := range Statuses() {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

func (s Status) String() string {
	return string(s)
}

// Priority is informational and never affects transition legality.
type Priority string

// Priority constants
const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// ParsePriority accepts any casing; empty input yields PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// HistoryEntry records one status transition.
type HistoryEntry struct {
	// UpdatedBy is nil when the acting user could not be resolved.
	UpdatedBy *string   `json:"updated_by" bson:"updated_by"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
	OldStatus Status    `json:"old_status" bson:"old_status"`
	NewStatus Status    `json:"new_status" bson:"new_status"`
}

type Task struct {
	ID          string         `json:"id" bson:"_id"`
	Title       string         `json:"title" bson:"title"`
	Description string         `json:"description" bson:"description"`
	ProjectID   string         `json:"project_id" bson:"project_id"`
	CreatedBy   string         `json:"created_by" bson:"created_by"`
	AssignedTo  string         `json:"assigned_to" bson:"assigned_to"`
	Status      Status         `json:"status" bson:"status"`
	Priority    Priority       `json:"priority" bson:"priority"`
	DueDate     *time.Time     `json:"due_date,omitempty" bson:"due_date,omitempty"`
	Remarks     string         `json:"remarks" bson:"remarks"`
	ClosedBy    *string        `json:"closed_by,omitempty" bson:"closed_by,omitempty"`
	History     []HistoryEntry `json:"history" bson:"history"`
	Version     int64          `json:"version" bson:"version"`
	CreatedAt   time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" bson:"updated_at"`
}

// Clone returns a deep copy so callers never share history slices.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.ClosedBy != nil {
		s := *t.ClosedBy
		c.ClosedBy = &s
	}
	c.History = make([]HistoryEntry, len(t.History))
	for i, h := range t.History {
		c.History[i] = h
		if h.UpdatedBy != nil {
			u := *h.UpdatedBy
			c.History[i].UpdatedBy = &u
		}
	}
	return &c
}

// ReplayHistory folds history starting from InitialStatus and returns the
// resulting status. It fails on the first entry whose OldStatus does not
// continue the chain.
func ReplayHistory(history []HistoryEntry) (Status, error) {
	current := InitialStatus
	for i, h := range history {
		if h.OldStatus != current {
			return current, fmt.Errorf("history entry %d starts at %q, expected %q", i, h.OldStatus, current)
		}
		if !h.NewStatus.Valid() {
			return current, fmt.Errorf("history entry %d has unknown status %q", i, h.NewStatus)
		}
		current = h.NewStatus
	}
	return current, nil
}

// VerifyHistory checks that the status is in the vocabulary and that
// replaying the history reproduces it.
func (t *Task) VerifyHistory() error {
	if !t.Status.Valid() {
		return fmt.Errorf("task %s has unknown status %q", t.ID, t.Status)
	}
	replayed, err := ReplayHistory(t.History)
	if err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	if replayed != t.Status {
		return fmt.Errorf("task %s: history replays to %q but status is %q", t.ID, replayed, t.Status)
	}
	return nil
}

package models

import "time"

type EntityType string

const (
	EntityTask       EntityType = "task"
	EntityHabit      EntityType = "habit"
	EntityReflection EntityType = "reflection"
	EntityMemory     EntityType = "memory"
	EntityPrompt     EntityType = "prompt"
)

// EntityTypes lists every reminder-eligible entity type.
func EntityTypes() []EntityType {
	return []EntityType{EntityTask, EntityHabit, EntityReflection, EntityMemory, EntityPrompt}
}

func (t EntityType) Valid() bool {
	for _, known := range EntityTypes() {
		if t == known {
			return true
		}
	}
	return false
}

type ReminderType string

const (
	ReminderOneTime   ReminderType = "one-time"
	ReminderRecurring ReminderType = "recurring"
)

type ReminderStatus string

const (
	StatusActive    ReminderStatus = "active"
	StatusSent      ReminderStatus = "sent"
	StatusCancelled ReminderStatus = "cancelled"
)

// Terminal reports whether no further scheduler transitions leave s.
func (s ReminderStatus) Terminal() bool {
	return s == StatusSent || s == StatusCancelled
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

type Recurrence struct {
	Frequency  Frequency  `json:"frequency"`
	Interval   int        `json:"interval"`
	DaysOfWeek []int      `json:"daysOfWeek,omitempty"` // 0 = Sunday
	EndDate    *time.Time `json:"endDate,omitempty"`
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// AtLeast orders priorities low < medium < high. Unknown values rank as medium.
func (p Priority) AtLeast(other Priority) bool {
	return p.rank() >= other.rank()
}

func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

// ReminderMetadata overrides the templated display text.
type ReminderMetadata struct {
	Title    string   `json:"title,omitempty"`
	Message  string   `json:"message,omitempty"`
	Priority Priority `json:"priority,omitempty"`
}

type Reminder struct {
	ID           string            `json:"id"`
	Seq          int64             `json:"-"`
	UserID       string            `json:"userId"`
	EntityType   EntityType        `json:"entityType"`
	EntityID     string            `json:"entityId"`
	ReminderDate time.Time         `json:"reminderDate"`
	ReminderType ReminderType      `json:"reminderType"`
	Recurrence   *Recurrence       `json:"recurrence,omitempty"`
	Status       ReminderStatus    `json:"status"`
	Metadata     *ReminderMetadata `json:"metadata,omitempty"`
	SentAt       *time.Time        `json:"sentAt,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// ReminderPatch carries the fields an update may change. Nil fields are left alone.
type ReminderPatch struct {
	ReminderDate    *time.Time
	ReminderType    *ReminderType
	Recurrence      *Recurrence
	ClearRecurrence bool // drops any stored recurrence, wins over Recurrence
	Metadata        *ReminderMetadata
}

// Empty reports whether the patch changes nothing.
func (p ReminderPatch) Empty() bool {
	return p.ReminderDate == nil && p.ReminderType == nil && p.Recurrence == nil && !p.ClearRecurrence && p.Metadata == nil
}

type ReminderStats struct {
	Total    int                    `json:"total"`
	ByStatus map[ReminderStatus]int `json:"byStatus"`
	ByType   map[ReminderType]int   `json:"byType"`
}

func NewReminderStats() ReminderStats {
	return ReminderStats{
		ByStatus: map[ReminderStatus]int{StatusActive: 0, StatusSent: 0, StatusCancelled: 0},
		ByType:   map[ReminderType]int{ReminderOneTime: 0, ReminderRecurring: 0},
	}
}

package service

import (
	"time"

	"habit-tracker/internal/common/validation"
	"habit-tracker/internal/models"
)

// CreateInput is the reminder data an entity controller passes along.
type CreateInput struct {
	ReminderDate *time.Time               `json:"reminderDate,omitempty"`
	ReminderType models.ReminderType      `json:"reminderType,omitempty"`
	Recurrence   *models.Recurrence       `json:"recurrence,omitempty"`
	Metadata     *models.ReminderMetadata `json:"metadata,omitempty"`
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	ReminderDate    *time.Time               `json:"reminderDate,omitempty"`
	ReminderType    *models.ReminderType     `json:"reminderType,omitempty"`
	Recurrence      *models.Recurrence       `json:"recurrence,omitempty"`
	ClearRecurrence bool                     `json:"-"`
	Metadata        *models.ReminderMetadata `json:"metadata,omitempty"`
}

// MaxInterval caps recurrence.interval (ten years of weekly steps).
const MaxInterval = 520

var recurrenceProperty = validation.Property{
	Type: "object",
	Properties: map[string]validation.Property{
		"frequency": {
			Type: "string",
			Enum: []string{
				string(models.FrequencyDaily),
				string(models.FrequencyWeekly),
				string(models.FrequencyMonthly),
				string(models.FrequencyCustom),
			},
		},
		"interval": {Type: "integer", Minimum: validation.Float64Ptr(1), Maximum: validation.Float64Ptr(MaxInterval)},
		"daysOfWeek": {
			Type:  "array",
			Items: &validation.Property{Type: "integer", Minimum: validation.Float64Ptr(0), Maximum: validation.Float64Ptr(6)},
		},
		"endDate": {Type: "string", Format: "date-time"},
	},
	Required:             []string{"frequency"},
	AdditionalProperties: validation.BoolPtr(false),
}

var metadataProperty = validation.Property{
	Type: "object",
	Properties: map[string]validation.Property{
		"title":   {Type: "string", MaxLength: validation.IntPtr(200)},
		"message": {Type: "string", MaxLength: validation.IntPtr(1000)},
		"priority": {
			Type: "string",
			Enum: []string{string(models.PriorityLow), string(models.PriorityMedium), string(models.PriorityHigh)},
		},
	},
	AdditionalProperties: validation.BoolPtr(false),
}

func reminderProperties() map[string]validation.Property {
	return map[string]validation.Property{
		"reminderDate": {Type: "string", Format: "date-time"},
		"reminderType": {
			Type: "string",
			Enum: []string{string(models.ReminderOneTime), string(models.ReminderRecurring)},
		},
		"recurrence": recurrenceProperty,
		"metadata":   metadataProperty,
	}
}

var (
	createValidator = validation.MustValidator(validation.JSONSchema{
		Type:                 "object",
		Properties:           reminderProperties(),
		Required:             []string{"reminderDate"},
		AdditionalProperties: false,
	})
	updateValidator = validation.MustValidator(validation.JSONSchema{
		Type:                 "object",
		Properties:           reminderProperties(),
		AdditionalProperties: false,
	})
)

// normalizeRecurrence defaults the interval and returns a copy safe to store.
func normalizeRecurrence(rec *models.Recurrence) *models.Recurrence {
	if rec == nil {
		return nil
	}
	out := *rec
	if out.Interval == 0 {
		out.Interval = 1
	}
	if rec.DaysOfWeek != nil {
		out.DaysOfWeek = append([]int(nil), rec.DaysOfWeek...)
	}
	return &out
}

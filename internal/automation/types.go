package automation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	robcron "github.com/robfig/cron/v3"
)

const (
	TriggerInterval = "interval"
	TriggerCron     = "cron"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Trigger is the recurrence condition of an automation: either a fixed
// interval in minutes or a standard cron expression.
type Trigger struct {
	Type       string `json:"type"`
	Minutes    int    `json:"minutes,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// Notify configures optional delivery of run reports.
type Notify struct {
	Email []string `json:"email,omitempty"`
}

// Automation binds a command, a target URL and a trigger. The scheduler
// mutates LastRunAt/LastStatus/LastError after every run attempt.
type Automation struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CommandSlug string  `json:"commandSlug"`
	TargetURL   string  `json:"targetUrl"`
	Enabled     bool    `json:"enabled"`
	Trigger     Trigger `json:"trigger"`
	Notify      Notify  `json:"notify,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	LastRunAt  time.Time `json:"lastRunAt,omitempty"`
	LastStatus string    `json:"lastStatus,omitempty"`
	LastError  string    `json:"lastError,omitempty"`
}

// PageRef echoes what was fetched for a successful run.
type PageRef struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

type ResultInput struct {
	URL  string   `json:"url"`
	Page *PageRef `json:"page,omitempty"`
}

// Result is an immutable record of one execution attempt.
type Result struct {
	ID             string       `json:"id"`
	AutomationID   string       `json:"automationId"`
	AutomationName string       `json:"automationName,omitempty"`
	CommandSlug    string       `json:"commandSlug"`
	Timestamp      time.Time    `json:"timestamp"`
	Success        bool         `json:"success"`
	Input          *ResultInput `json:"input,omitempty"`
	Output         string       `json:"output,omitempty"`
	Error          string       `json:"error,omitempty"`
	DurationMs     int64        `json:"durationMs,omitempty"`
	DeliveryError  string       `json:"deliveryError,omitempty"`
}

// Standard 5-field expressions plus descriptors like @hourly.
var cronParser = robcron.NewParser(robcron.Minute | robcron.Hour | robcron.Dom | robcron.Month | robcron.Dow | robcron.Descriptor)

// ValidateTrigger rejects malformed triggers at save time so the scheduler
// only ever sees runnable shapes.
func ValidateTrigger(tr Trigger) error {
	switch strings.ToLower(strings.TrimSpace(tr.Type)) {
	case TriggerInterval:
		if tr.Minutes <= 0 {
			return errors.New("trigger.minutes must be > 0")
		}
		return nil
	case TriggerCron:
		expr := strings.TrimSpace(tr.Expression)
		if expr == "" {
			return errors.New("trigger.expression is required for cron")
		}
		if _, err := cronParser.Parse(expr); err != nil {
			return fmt.Errorf("parse cron expression: %w", err)
		}
		return nil
	case "":
		return errors.New("trigger.type is required")
	default:
		return fmt.Errorf("unknown trigger.type: %s", strings.TrimSpace(tr.Type))
	}
}

// NextCronRun computes the first firing of a cron trigger strictly after
// base.
func NextCronRun(tr Trigger, base time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(strings.TrimSpace(tr.Expression))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
	}
	return schedule.Next(base), nil
}

package domain

import (
	"errors"
	"time"
)

// Day is the unit every threshold is counted in.
const Day = 24 * time.Hour

// Policy holds the escalation and follow-up thresholds, all in whole days.
type Policy struct {
	InitialFollowUpDays int
	ReplyFollowUpDays   int
	ReminderStartDays   int
	ReminderEndDays     int
	ReminderAdvanceDays int
	Level1Days          int
	Level2Days          int
	Level3Days          int
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		InitialFollowUpDays: 7,
		ReplyFollowUpDays:   2,
		ReminderStartDays:   3,
		ReminderEndDays:     5,
		ReminderAdvanceDays: 1,
		Level1Days:          5,
		Level2Days:          3,
		Level3Days:          2,
	}
}

// Validate rejects thresholds that would make the evaluator ambiguous.
func (p Policy) Validate() error {
	var errs []error
	if p.InitialFollowUpDays <= 0 || p.ReplyFollowUpDays <= 0 {
		errs = append(errs, errors.New("follow-up intervals must be positive"))
	}
	if p.Level1Days <= 0 || p.Level2Days <= 0 || p.Level3Days <= 0 {
		errs = append(errs, errors.New("escalation thresholds must be positive"))
	}
	if p.ReminderStartDays <= 0 || p.ReminderEndDays < p.ReminderStartDays {
		errs = append(errs, errors.New("reminder window must be non-empty"))
	}
	if p.ReminderEndDays > p.Level1Days {
		errs = append(errs, errors.New("reminder window must close by the first escalation"))
	}
	return errors.Join(errs...)
}

func (p Policy) afterDays(now time.Time, days int) time.Time {
	return now.Add(time.Duration(days) * Day)
}

// elapsedDays is the number of whole days between since and now. Negative
// spans count as zero.
func elapsedDays(since, now time.Time) int {
	d := now.Sub(since)
	if d <= 0 {
		return 0
	}
	return int(d / Day)
}

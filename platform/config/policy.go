package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// EscalationThresholds holds the day counts that drive reminders and escalations.
// Values are whole days; the workflow module converts them into durations.
type EscalationThresholds struct {
	InitialFollowUpDays int
	ReplyFollowUpDays   int
	ReminderStartDays   int
	ReminderEndDays     int
	ReminderAdvanceDays int
	Level1Days          int
	Level2Days          int
	Level3Days          int
}

// DefaultEscalationThresholds returns the production cadence.
func DefaultEscalationThresholds() EscalationThresholds {
	return EscalationThresholds{
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

// Validate rejects cadences that would make the evaluator skip or loop.
func (t EscalationThresholds) Validate() error {
	positive := map[string]int{
		"initial follow-up days": t.InitialFollowUpDays,
		"reply follow-up days":   t.ReplyFollowUpDays,
		"reminder advance days":  t.ReminderAdvanceDays,
		"level 1 days":           t.Level1Days,
		"level 2 days":           t.Level2Days,
		"level 3 days":           t.Level3Days,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("escalation %s must be positive, got %d", name, v)
		}
	}
	if t.ReminderStartDays <= 0 || t.ReminderEndDays < t.ReminderStartDays {
		return fmt.Errorf("escalation reminder window [%d,%d) is invalid", t.ReminderStartDays, t.ReminderEndDays)
	}
	if t.ReminderEndDays > t.Level1Days {
		return fmt.Errorf("escalation reminder window must close by level 1 (%d days), got %d", t.Level1Days, t.ReminderEndDays)
	}
	return nil
}

// PolicyFile is the on-disk shape of ESCALATION_POLICY_FILE.
//
//	escalation:
//	  reminderStartDays: 3
//	  level1Days: 5
//	sweep:
//	  interval: 24h
type PolicyFile struct {
	Escalation policyThresholds `yaml:"escalation"`
	Sweep      struct {
		Interval string `yaml:"interval"`
	} `yaml:"sweep"`
}

type policyThresholds struct {
	InitialFollowUpDays *int `yaml:"initialFollowUpDays"`
	ReplyFollowUpDays   *int `yaml:"replyFollowUpDays"`
	ReminderStartDays   *int `yaml:"reminderStartDays"`
	ReminderEndDays     *int `yaml:"reminderEndDays"`
	ReminderAdvanceDays *int `yaml:"reminderAdvanceDays"`
	Level1Days          *int `yaml:"level1Days"`
	Level2Days          *int `yaml:"level2Days"`
	Level3Days          *int `yaml:"level3Days"`
}

func (p policyThresholds) overlay(t *EscalationThresholds) {
	set := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	set(&t.InitialFollowUpDays, p.InitialFollowUpDays)
	set(&t.ReplyFollowUpDays, p.ReplyFollowUpDays)
	set(&t.ReminderStartDays, p.ReminderStartDays)
	set(&t.ReminderEndDays, p.ReminderEndDays)
	set(&t.ReminderAdvanceDays, p.ReminderAdvanceDays)
	set(&t.Level1Days, p.Level1Days)
	set(&t.Level2Days, p.Level2Days)
	set(&t.Level3Days, p.Level3Days)
}

// LoadPolicyFile parses a YAML escalation policy file.
func LoadPolicyFile(path string) (PolicyFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PolicyFile{}, fmt.Errorf("read escalation policy: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes YAML policy bytes. Unknown keys are rejected so a typo
// does not silently fall back to the default cadence.
func ParsePolicy(raw []byte) (PolicyFile, error) {
	var file PolicyFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return PolicyFile{}, fmt.Errorf("parse escalation policy: %w", err)
	}
	return file, nil
}

// Thresholds applies the file on top of the defaults.
func (p PolicyFile) Thresholds() EscalationThresholds {
	t := DefaultEscalationThresholds()
	p.Escalation.overlay(&t)
	return t
}

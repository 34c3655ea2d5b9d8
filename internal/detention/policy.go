// Package detention holds the shared detention math: stop-type policies, the live
// detention clock used by dashboards and the alert evaluator, and the one-time
// finalization run when a departure is recorded.
package detention

import (
	"strings"

	"fleetdetention/internal/model"
)

// RatePerMinute is the detention charge in USD, uniform across stop types.
const RatePerMinute = 1.25

// Policy carries the timing rules of a stop type, all in minutes.
// Zero WarningBeforeMinutes means no pre-detention warning.
// Zero ReminderAfterStartMinutes means reminders follow the default interval.
type Policy struct {
	DetentionThresholdMinutes int `json:"detentionThresholdMinutes"`
	WarningBeforeMinutes      int `json:"warningBeforeMinutes"`
	ReminderAfterStartMinutes int `json:"reminderAfterStartMinutes"`
}

var policies = map[model.StopType]Policy{
	model.StopRegular:   {DetentionThresholdMinutes: 120, WarningBeforeMinutes: 30, ReminderAfterStartMinutes: 30},
	model.StopMultiStop: {DetentionThresholdMinutes: 60, WarningBeforeMinutes: 15, ReminderAfterStartMinutes: 0},
	model.StopRail:      {DetentionThresholdMinutes: 60, WarningBeforeMinutes: 0, ReminderAfterStartMinutes: 20},
	model.StopNoBilling: {DetentionThresholdMinutes: 15, WarningBeforeMinutes: 0, ReminderAfterStartMinutes: 20},
	model.StopDropHook:  {DetentionThresholdMinutes: 30, WarningBeforeMinutes: 0, ReminderAfterStartMinutes: 30},
}

var stopTypeOrder = []model.StopType{
	model.StopRegular,
	model.StopMultiStop,
	model.StopRail,
	model.StopNoBilling,
	model.StopDropHook,
}

// PolicyFor returns the policy for a stop type. Unknown or empty tags get the regular policy.
func PolicyFor(st model.StopType) Policy {
	if p, ok := policies[st]; ok {
		return p
	}
	return policies[model.StopRegular]
}

// ParseStopType normalises a tag. ok is false when the tag is not known; the
// returned type is then regular.
func ParseStopType(s string) (model.StopType, bool) {
	st := model.StopType(strings.ToLower(strings.TrimSpace(s)))
	if st == "" {
		return model.StopRegular, true
	}
	if _, ok := policies[st]; ok {
		return st, true
	}
	return model.StopRegular, false
}

// StopTypes lists every known stop type in display order.
func StopTypes() []model.StopType {
	return append([]model.StopType(nil), stopTypeOrder...)
}

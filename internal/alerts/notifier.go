package alerts

import "fleetdetention/internal/model"

// Notifier observes newly created alerts. Implementations must not block the
// evaluator; slow consumers queue internally.
type Notifier interface {
	OnAlertCreated(a model.Alert)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(model.Alert)

func (f NotifierFunc) OnAlertCreated(a model.Alert) { f(a) }

// Notifiers fans one alert out to every non-nil observer in order.
type Notifiers []Notifier

func (ns Notifiers) OnAlertCreated(a model.Alert) {
	for _, n := range ns {
		if n != nil {
			n.OnAlertCreated(a)
		}
	}
}

package api

import (
	"fleetdetention/internal/model"
	"fleetdetention/internal/webhooks"
)

// BrokerNotifier forwards new alerts and appointment changes onto the broker.
// It satisfies both alerts.Notifier and dispatch.Observer.
type BrokerNotifier struct {
	Broker EventBroker
}

func (n BrokerNotifier) OnAlertCreated(a model.Alert) {
	n.Broker.Publish(TopicAlerts, Event{Type: webhooks.EventAlertCreated, DriverID: a.DriverID, Data: a})
}

func (n BrokerNotifier) OnAppointmentChanged(event string, loc model.DriverLocation) {
	n.Broker.Publish(TopicBoard, Event{Type: event, DriverID: loc.DriverID, Data: loc})
}

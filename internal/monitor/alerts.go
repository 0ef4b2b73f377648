package monitor

import "log"

// AlertSink is a pluggable delivery channel for risk alerts.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts to the process log. It is the default sink;
// deployments can swap in webhook or chat delivery behind the same
// interface.
type LogSink struct{}

func (LogSink) Send(message string) error {
	log.Printf("⚠️ ALERT: %s", message)
	return nil
}

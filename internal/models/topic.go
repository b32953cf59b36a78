package models

// Topic describes an MQTT topic together with the delivery options used on it.
type Topic struct {
	Name     string
	QOS      byte
	Retained bool
}

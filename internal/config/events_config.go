package config

import "strings"

const (
	kafkaBrokersVar = "KAFKA_BROKERS"
	kafkaTopicVar   = "KAFKA_TOPIC"
)

type EventsConfig interface {
	GetKafkaBrokers() []string
	GetKafkaTopic() string
}

type Events struct{}

var _ EventsConfig = Events{}

// GetKafkaBrokers returns the configured brokers; an empty list disables event publishing.
func (Events) GetKafkaBrokers() []string {
	var brokers []string
	for _, broker := range strings.Split(GetEnv(kafkaBrokersVar, ""), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func (Events) GetKafkaTopic() string {
	return GetEnv(kafkaTopicVar, "session-events")
}

// Package broadcaster implements a background job that periodically
// scans the exit outbox for undelivered events and publishes them
// to an external sink (Kafka through kafka-go or sarama).
package broadcaster

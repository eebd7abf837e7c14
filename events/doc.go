// Package events streams bus location updates to Kafka for analytics
// consumers. Disabled unless brokers are configured.
package events

// Package notify holds the driven.Notifier adapters: a NATS publisher and a
// log sink for local runs.
package notify

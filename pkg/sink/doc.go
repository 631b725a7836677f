// Package sink holds the outbound side effects of the decision engine.
//
// WebhookSink writes applied prices to a storefront over HTTP. LogSink is
// a dry-run PriceSink for development. NATSNotifier publishes approval and
// recommendation events; LogNotifier writes them to the process log.
// Fanout combines notifiers.
package sink

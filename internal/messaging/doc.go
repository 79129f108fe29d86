// Package messaging connects the dialog engine to the channels that carry
// chat turns.
//
// Outbound replies go through a Messenger:
//
//   - WebhookMessenger posts an Envelope to an HTTP connector.
//   - KafkaMessenger publishes an Envelope to a reply topic.
//   - ConsoleMessenger writes plain text for local conversations.
//
// Inbound turns arrive either over HTTP (see internal/server) or through a
// KafkaConsumer, and are handed to a TurnHandler.
package messaging

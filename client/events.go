package client

import "github.com/secsync/secsync/messages"

// EventType enumerates the inputs a Machine's event loop accepts.
type EventType string

const (
	EventWebsocketConnected             EventType = "WEBSOCKET_CONNECTED"
	EventWebsocketDisconnected          EventType = "WEBSOCKET_DISCONNECTED"
	EventWebsocketRetry                 EventType = "WEBSOCKET_RETRY"
	EventWebsocketAddToIncomingQueue    EventType = "WEBSOCKET_ADD_TO_INCOMING_QUEUE"
	EventWebsocketAddToCustomMsgQueue   EventType = "WEBSOCKET_ADD_TO_CUSTOM_MESSAGE_QUEUE"
	EventAddChanges                     EventType = "ADD_CHANGES"
	EventCreateSnapshot                 EventType = "CREATE_SNAPSHOT"
	EventDisconnect                     EventType = "DISCONNECT"
	EventFailedCreatingEphemeralUpdate  EventType = "FAILED_CREATING_EPHEMERAL_UPDATE"
	EventSendEphemeralUpdate            EventType = "SEND_EPHEMERAL_UPDATE"
)

// Event is one input to the sync machine's event queue.
type Event struct {
	Type EventType

	// Data carries the raw incoming frame for the WEBSOCKET_ADD_TO_*
	// events, or host-supplied change bytes for ADD_CHANGES, or the body
	// for SEND_EPHEMERAL_UPDATE.
	Data []byte

	// Err carries the failure for FAILED_CREATING_EPHEMERAL_UPDATE.
	Err error

	// EphemeralMessageType selects the outgoing message type for
	// SEND_EPHEMERAL_UPDATE.
	EphemeralMessageType messages.EphemeralMessageType
}

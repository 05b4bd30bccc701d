package realtime

// MessageType tags every outbound frame.
type MessageType string

const (
	TypeNotification MessageType = "notification"
	TypeError        MessageType = "error"
	TypeSystem       MessageType = "system"
	TypePong         MessageType = "pong"
)

// Envelope is the outbound wire format: {"type": ..., "data": ...}.
type Envelope struct {
	Type MessageType `json:"type"`
	Data any         `json:"data,omitempty"`
}

// SystemMessage is the data of a system envelope.
type SystemMessage struct {
	Event   string         `json:"event"`
	Message string         `json:"message,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func Notification(data any) Envelope {
	return Envelope{Type: TypeNotification, Data: data}
}

func System(event, message string, payload map[string]any) Envelope {
	return Envelope{Type: TypeSystem, Data: SystemMessage{Event: event, Message: message, Payload: payload}}
}

func Error(message string) Envelope {
	return Envelope{Type: TypeError, Data: map[string]string{"message": message}}
}

// inbound is the only client message the server interprets.
type inbound struct {
	Type string `json:"type"`
}

package model

// SocketStatus is the status enum shared by inbound and outbound socket messages.
type SocketStatus string

const (
	StatusStop        SocketStatus = "stop"
	StatusInterrupted SocketStatus = "interrupted"
	StatusChat        SocketStatus = "chat"
)

// Valid reports whether s is one of the known statuses.
func (s SocketStatus) Valid() bool {
	switch s {
	case StatusStop, StatusInterrupted, StatusChat:
		return true
	}
	return false
}

// InboundMessage is a client request read from the socket.
type InboundMessage struct {
	UserID    string       `json:"userId"`
	RequestID string       `json:"requestId,omitempty"`
	UserName  string       `json:"userName,omitempty"`
	Message   string       `json:"message"`
	Status    SocketStatus `json:"status"`
}

// OutboundMessage is the single reply produced per inbound message. RequestID
// echoes the id of the request it answers.
type OutboundMessage struct {
	Status    SocketStatus `json:"status"`
	Content   string       `json:"content"`
	RequestID string       `json:"requestId,omitempty"`
	Error     bool         `json:"error,omitempty"`
}

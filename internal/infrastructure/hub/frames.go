package hub

import "chatnet/internal/core/domain"

// Frame type discriminators shared by client and server frames.
const (
	FrameDM       = "dm"
	FrameSignal   = "signal"
	FramePresence = "presence"
)

// inboundFrame is the minimal decode used to dispatch on type.
type inboundFrame struct {
	Type string `json:"type"`
}

// dmFrame is a client-to-server direct message request.
type dmFrame struct {
	To   domain.UserID `json:"to"`
	Text string        `json:"text"`
}

// dmEnvelope is the canonical server-to-client copy of a persisted
// message; the client adopts the server-assigned id and ts from it.
type dmEnvelope struct {
	Type string           `json:"type"`
	ID   domain.MessageID `json:"id"`
	From domain.UserID    `json:"from"`
	To   domain.UserID    `json:"to"`
	Text string           `json:"text"`
	Ts   int64            `json:"ts"`
}

// presenceFrame is the snapshot broadcast to every live stream.
type presenceFrame struct {
	Type  string                 `json:"type"`
	Users []domain.PresenceEntry `json:"users"`
}

package gateway

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/Hz-Lin/transcendence/pkg/state"
)

// ClientMessage is the inbound frame shape.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ServerEvent is the outbound frame shape.
type ServerEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Inbound event names.
const (
	EventJoinChannel   = "joinChannel"
	EventLeaveChannel  = "leaveChannel"
	EventSendMessage   = "sendMessageToChannel"
	EventKickUser      = "kickUser"
	EventBanUser       = "banUser"
	EventMuteUser      = "muteUser"
	EventGameChallenge = "gameChallenge"
	EventGameAccept    = "gameAccept"
	EventGameDecline   = "gameDecline"
)

// Outbound event names. EventLeaveChannel doubles as the forced-departure
// instruction sent to kicked or banned connections.
const (
	EventUserJoined         = "userJoined"
	EventUserLeft           = "userLeft"
	EventOtherJoinedMembers = "otherJoinedMembers"
	EventMessage            = "message"
	EventError              = "error"
	EventUnauthorized       = "unauthorized"
	EventCreateGame         = "createGame"
	EventInviteForGame      = "inviteForGame"
	EventGameStarted        = "gameStarted"
	EventGameDeclined       = "gameDeclined"
)

type errorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type channelPayload struct {
	ChannelName string `json:"channelName"`
}

type gameSessionPayload struct {
	SessionID    uuid.UUID      `json:"sessionId"`
	ChallengerID int64          `json:"challengerId"`
	InviteeID    int64          `json:"inviteeId"`
	Challenger   state.Identity `json:"challenger,omitempty"`
}

// Encode serializes an outbound frame.
func Encode(event string, payload any) []byte {
	frame, err := json.Marshal(ServerEvent{Event: event, Payload: payload})
	if err != nil {
		return nil
	}
	return frame
}

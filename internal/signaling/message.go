package signaling

import "encoding/json"

// The relay only ever inspects the type tag of a frame. A "join" is
// handled by the hub; every other type is an opaque payload forwarded
// verbatim to the peer.
const (
	typeJoin  = "join"
	typeInit  = "init"
	typeError = "error"
)

// Error texts returned to the sender as typed error frames. All of these
// are local to the offending connection; the connection stays open.
const (
	errMessageTooLarge  = "Message too large"
	errInvalidJSON      = "Invalid JSON format"
	errInvalidStructure = "Invalid message structure"
	errInvalidRoomID    = "Invalid room ID"
	errRoomFull         = "Room is full"
	errAlreadyJoined    = "Already in a room"
)

type joinMessage struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type initMessage struct {
	Type      string `json:"type"`
	Initiator bool   `json:"initiator"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func initFrame(initiator bool) []byte {
	frame, _ := json.Marshal(initMessage{Type: typeInit, Initiator: initiator})
	return frame
}

func errorFrame(msg string) []byte {
	frame, _ := json.Marshal(errorMessage{Type: typeError, Error: msg})
	return frame
}

// parseType extracts the type tag without touching the rest of the
// payload. The two failure modes map to distinct protocol errors:
// malformed JSON versus a frame with a missing or non-string type.
func parseType(raw []byte) (string, string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		if !json.Valid(raw) {
			return "", errInvalidJSON
		}
		return "", errInvalidStructure
	}

	typeRaw, ok := fields["type"]
	if !ok {
		return "", errInvalidStructure
	}

	var msgType string
	if err := json.Unmarshal(typeRaw, &msgType); err != nil {
		return "", errInvalidStructure
	}

	return msgType, ""
}

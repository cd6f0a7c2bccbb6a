// Package protocol defines the observability events a world emits. Every
// event is a flat JSON object routed by its "type" field.
package protocol

import "encoding/json"

const Version = "1.0"

// Event types.
const (
	TypeRun       = "RUN"
	TypeStep      = "STEP"
	TypeTask      = "TASK"
	TypeDivision  = "DIVISION"
	TypeTimeslice = "TIMESLICE"
)

// Event is implemented by every message below.
type Event interface {
	EventType() string
}

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Decode parses a single event line into its concrete message type.
// Unknown types return ok=false without error.
func Decode(b []byte) (Event, bool, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, false, err
	}
	var ev Event
	switch base.Type {
	case TypeRun:
		ev = &RunMsg{}
	case TypeStep:
		ev = &StepMsg{}
	case TypeTask:
		ev = &TaskMsg{}
	case TypeDivision:
		ev = &DivisionMsg{}
	case TypeTimeslice:
		ev = &TimesliceMsg{}
	default:
		return nil, false, nil
	}
	if err := json.Unmarshal(b, ev); err != nil {
		return nil, false, err
	}
	return ev, true, nil
}

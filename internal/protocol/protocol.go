package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeCmd     = "CMD"
	TypeAck     = "ACK"
	TypeStatus  = "STATUS"
	TypeEvent   = "EVENT"
	TypeError   = "ERROR"
)

// Command names carried by CMD.
const (
	CmdGenerate           = "GENERATE"
	CmdSpawnWave          = "SPAWN_WAVE"
	CmdSetAutoProgress    = "SET_AUTO_PROGRESS"
	CmdSetTransitionDelay = "SET_TRANSITION_DELAY"
	CmdReset              = "RESET"
	CmdDamage             = "DAMAGE"
)

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

package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
	// StatusEveryTicks throttles STATUS pushes; 0 means the server default.
	StatusEveryTicks int `json:"status_every_ticks,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	RunID           string         `json:"run_id"`
	Tick            uint64         `json:"tick"`
	RunParams       RunParams      `json:"run_params"`
	Arena           *ArenaSummary  `json:"arena,omitempty"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type RunParams struct {
	TickRateHz        int  `json:"tick_rate_hz"`
	TotalWaves        int  `json:"total_waves"`
	AutoProgress      bool `json:"auto_progress"`
	TransitionDelayMs int  `json:"transition_delay_ms"`

	// EnemyKinds lists every kind STATUS may report, sorted.
	EnemyKinds []string `json:"enemy_kinds,omitempty"`
}

type ArenaSummary struct {
	Seed        int64        `json:"seed"`
	TemplateID  string       `json:"template_id"`
	Width       float64      `json:"width"`
	Depth       float64      `json:"depth"`
	SpawnPoints [][3]float64 `json:"spawn_points"`
	Covers      int          `json:"covers"`
	CoverTarget int          `json:"cover_target"`
	Digest      string       `json:"digest"`
}

type CatalogDigests struct {
	TemplatesDigest string `json:"templates_digest"`
	WavesDigest     string `json:"waves_digest"`
	EnemiesDigest   string `json:"enemies_digest"`
	TuningDigest    string `json:"tuning_digest,omitempty"`
}

// CMD (client -> server). Fields beyond Cmd are read according to Cmd.
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Cmd             string `json:"cmd"`

	Seed    *int64 `json:"seed,omitempty"`
	Wave    int    `json:"wave,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
	DelayMs *int64 `json:"delay_ms,omitempty"`
	EnemyID string `json:"enemy_id,omitempty"`
	Amount  int    `json:"amount,omitempty"`
}

// ACK (server -> client): the command was applied at ServerTick.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Cmd             string `json:"cmd"`
	ServerTick      uint64 `json:"server_tick"`
}

// STATUS (server -> client)
type StatusMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	RunID           string `json:"run_id"`
	State           string `json:"state"`

	Wave                  int            `json:"wave"`
	TotalWaves            int            `json:"total_waves"`
	Alive                 int            `json:"alive"`
	Transitioning         bool           `json:"transitioning"`
	TransitionRemainingMs int64          `json:"transition_remaining_ms"`
	RunComplete           bool           `json:"run_complete"`
	Loot                  map[string]int `json:"loot"`
	Enemies               []EnemyObs     `json:"enemies,omitempty"`
	Digest                string         `json:"digest"`
}

type EnemyObs struct {
	ID    string     `json:"id"`
	Kind  string     `json:"kind"`
	HP    int        `json:"hp"`
	MaxHP int        `json:"max_hp"`
	Pos   [3]float64 `json:"pos"`
	Dead  bool       `json:"dead,omitempty"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Event           Event  `json:"event"`
}

type Event struct {
	Kind  string `json:"kind"`
	Tick  uint64 `json:"tick"`
	RunID string `json:"run_id"`

	Wave       int    `json:"wave,omitempty"`
	Enemies    int    `json:"enemies,omitempty"`
	Seed       int64  `json:"seed,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	EnemyID    string `json:"enemy_id,omitempty"`
	Resource   string `json:"resource,omitempty"`
	Amount     int    `json:"amount,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(reqID, code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, ReqID: reqID, Code: code, Message: message}
}

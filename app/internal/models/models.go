package models

// StatusChange is one recorded transition of an aggregator's status.
type StatusChange struct {
	ID         int64  `json:"id"`
	RecordedAt string `json:"recorded_at"`
	Aggregator string `json:"aggregator"`
	Beast      string `json:"beast"`
	Mlat       string `json:"mlat"`
	Container  string `json:"container,omitempty"`
}

// AggregatorState is the last persisted status, used for change detection.
type AggregatorState struct {
	Aggregator string
	Beast      string
	Mlat       string
}

// DecisionRecord is one relay host selection.
type DecisionRecord struct {
	ID        int64  `json:"id"`
	DecidedAt string `json:"decided_at"`
	Host      string `json:"host"`
	Reason    string `json:"reason"`
	Mode      string `json:"mode"`
	Strategy  string `json:"strategy"`
}

// LogEntry is a row of system_logs.
type LogEntry struct {
	ID         int64  `json:"id"`
	Timestamp  string `json:"timestamp"`
	Level      string `json:"level"`
	Category   string `json:"category"`
	Aggregator string `json:"aggregator,omitempty"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
}

// LogStats summarizes system_logs by level.
type LogStats struct {
	TotalLogs  int `json:"total"`
	ErrorCount int `json:"error"`
	WarnCount  int `json:"warn"`
	InfoCount  int `json:"info"`
	DebugCount int `json:"debug"`
}

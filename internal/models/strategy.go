package models

// Log record levels as the dashboard understands them.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelSuccess = "success"
)

// StartConfig is the optional worker configuration supplied by the dashboard
// with a start request. Absent fields mean "use the worker's own default".
// Position sizes are pointers so that an explicit 0 survives the trip.
type StartConfig struct {
	SelectedPairs      []string `json:"selectedPairs,omitempty"`
	SelectedCrypto     []string `json:"selectedCrypto,omitempty"`
	Email              string   `json:"email,omitempty"`
	Password           string   `json:"password,omitempty"`
	AccountType        string   `json:"accountType,omitempty"`
	PositionSize       *float64 `json:"positionSize,omitempty"`
	PairsPositionSize  *float64 `json:"pairsPositionSize,omitempty"`
	CryptoPositionSize *float64 `json:"cryptoPositionSize,omitempty"`
	Aggressiveness     string   `json:"aggressiveness,omitempty"`
}

// LogRecord is one structured line of the worker's log, oldest first in any
// sequence returned to the client.
type LogRecord struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// WorkerStatus is the supervisor's view of the worker slot at one observation.
type WorkerStatus struct {
	Status string `json:"status"`
	Pid    int    `json:"pid,omitempty"`
	Uptime string `json:"uptime,omitempty"`
	Memory string `json:"memory,omitempty"`
	CPU    string `json:"cpu,omitempty"`
}

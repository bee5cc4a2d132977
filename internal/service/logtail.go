package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"strategyd/internal/models"
)

const (
	defaultLogLimit = 50
	logSeparator    = " | "
	timestampLayout = "2006-01-02T15:04:05"
)

// Tailer renders the worker's append-only log file as structured records for
// the dashboard. It is strictly read-only: the worker owns the file.
//
// The whole file is re-read on every call, which is fine while the worker
// keeps its log small. TODO: seek from the end instead once logs grow past
// a few MB.
type Tailer struct {
	path string
	sup  *Supervisor
}

func NewTailer(path string, sup *Supervisor) *Tailer {
	return &Tailer{path: path, sup: sup}
}

// Recent returns up to limit records from the end of the log, oldest first.
// It never fails: a missing or empty file yields synthesized records matching
// the supervisor's state, and a read failure degrades to a single error-level
// record.
func (t *Tailer) Recent(limit int) []models.LogRecord {
	if limit <= 0 {
		limit = defaultLogLimit
	}

	records, err := t.readTail(limit)
	if err != nil {
		log.Warn().Err(err).Str("path", t.path).Msg("could not read strategy log")
		return []models.LogRecord{{
			Timestamp: nowStamp(),
			Level:     models.LevelError,
			Message:   fmt.Sprintf("error reading strategy logs: %v", err),
		}}
	}
	if len(records) > 0 {
		return records
	}
	return t.placeholders()
}

func (t *Tailer) readTail(limit int) ([]models.LogRecord, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	records := make([]models.LogRecord, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		records = append(records, parseLine(line))
	}
	return records, nil
}

// parseLine converts one raw log line into a record. It cannot fail: lines
// that do not match the "TIMESTAMP | LEVEL | MESSAGE" layout come back whole
// as info records stamped with the current time.
func parseLine(line string) models.LogRecord {
	parts := strings.SplitN(line, logSeparator, 3)
	if len(parts) < 3 {
		return models.LogRecord{
			Timestamp: nowStamp(),
			Level:     models.LevelInfo,
			Message:   line,
		}
	}
	return models.LogRecord{
		Timestamp: parts[0],
		Level:     mapLevel(parts[1]),
		Message:   parts[2],
	}
}

func mapLevel(token string) string {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "info", "debug":
		return models.LevelInfo
	case "warn", "warning":
		return models.LevelWarning
	case "err", "error", "critical":
		return models.LevelError
	default:
		return models.LevelInfo
	}
}

// placeholders stands in for an absent or empty log so the dashboard always
// has something to show. The text tracks supervisor state; a live worker that
// has not written yet is reported as running rather than silent.
func (t *Tailer) placeholders() []models.LogRecord {
	ts := nowStamp()
	if pid, alive := t.sup.WorkerAlive(); alive {
		return []models.LogRecord{
			{Timestamp: ts, Level: models.LevelSuccess, Message: fmt.Sprintf("Algorithm running (pid %d)", pid)},
			{Timestamp: ts, Level: models.LevelInfo, Message: "Analyzing markets..."},
			{Timestamp: ts, Level: models.LevelInfo, Message: "Monitoring trading opportunities..."},
		}
	}
	return []models.LogRecord{
		{Timestamp: ts, Level: models.LevelInfo, Message: "Strategy platform ready to start"},
		{Timestamp: ts, Level: models.LevelInfo, Message: "Configure the parameters and activate the algorithm"},
		{Timestamp: ts, Level: models.LevelSuccess, Message: "Platform initialized successfully"},
	}
}

func nowStamp() string {
	return time.Now().Format(timestampLayout)
}

package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gmdaily/pkg/logger"
)

const (
	dateLayout    = "2006-01-02"
	recordVersion = 1
)

// Record is the bookkeeping for one account's run on one day. It holds no
// session or cookie state.
type Record struct {
	Account    string            `json:"account"`
	Date       string            `json:"date"`
	RunID      string            `json:"run_id"`
	Completed  bool              `json:"completed"`
	Tasks      map[string]string `json:"tasks"`
	Successful int               `json:"successful"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Version    int               `json:"version"`
}

// SetTask records a task outcome
func (r *Record) SetTask(name, status string) {
	if r.Tasks == nil {
		r.Tasks = make(map[string]string)
	}
	r.Tasks[name] = status
}

// Manager stores one record file per account
type Manager struct {
	dir    string
	logger logger.Logger
	now    func() time.Time
}

// NewManager stores records under dir; an empty dir uses the per-user data directory
func NewManager(dir string, log logger.Logger) (*Manager, error) {
	if dir == "" {
		dataDir, err := DataDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{dir: dir, logger: log, now: time.Now}, nil
}

func (m *Manager) today() string {
	return m.now().Format(dateLayout)
}

// fileName keeps account names from escaping the checkpoint directory
func fileName(account string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '.' || r < ' ':
			return '_'
		default:
			return r
		}
	}, account)
	if safe == "" {
		safe = "_"
	}
	return safe + ".checkpoint.json"
}

func (m *Manager) path(account string) string {
	return filepath.Join(m.dir, fileName(account))
}

// Begin starts a fresh record for today
func (m *Manager) Begin(account, runID string) *Record {
	return &Record{
		Account: account,
		Date:    m.today(),
		RunID:   runID,
		Tasks:   make(map[string]string),
		Version: recordVersion,
	}
}

// Load returns the account's last record, or nil when there is none
func (m *Manager) Load(account string) (*Record, error) {
	data, err := os.ReadFile(m.path(account))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &rec, nil
}

// DoneToday reports whether the account already completed a run today.
// An unreadable record counts as not done.
func (m *Manager) DoneToday(account string) bool {
	rec, err := m.Load(account)
	if err != nil {
		m.logger.WithError(err).WithField("account", account).Warn("ignoring unreadable checkpoint")
		return false
	}
	return rec != nil && rec.Completed && rec.Date == m.today()
}

// Save writes the record atomically
func (m *Manager) Save(rec *Record) error {
	rec.UpdatedAt = m.now()
	if rec.Version == 0 {
		rec.Version = recordVersion
	}

	target := m.path(rec.Account)
	file, err := os.CreateTemp(m.dir, fileName(rec.Account)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	tempPath := file.Name()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rec); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("checkpoint saved", map[string]interface{}{
		"account":   rec.Account,
		"date":      rec.Date,
		"completed": rec.Completed,
	})
	return nil
}

// Delete removes the account's record
func (m *Manager) Delete(account string) error {
	if err := os.Remove(m.path(account)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// DataDir returns the per-user data directory for the current OS
func DataDir() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "gmdaily")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "gmdaily")
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "gmdaily")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "gmdaily")
		}
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}

package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	appDirName    = "Lazarus_Ground_Station"
	sessionPrefix = "session_"

	CSVFileName    = "telemetry_data.csv"
	SQLiteFileName = "session.sqlite"
	CaptureName    = "radio.cap"
)

// Session is one ground-station run. It is created once at startup and
// handed to every writer that needs the output directory.
type Session struct {
	ID      int
	Dir     string
	Started time.Time
}

// DefaultBaseDir is $APPDATA/Lazarus_Ground_Station, falling back to the
// home directory when APPDATA is unset.
func DefaultBaseDir() string {
	root := strings.TrimSpace(os.Getenv("APPDATA"))
	if root == "" {
		if home, err := os.UserHomeDir(); err == nil {
			root = home
		} else {
			root = "."
		}
	}
	return filepath.Join(root, appDirName)
}

// New creates baseDir/session_<n> for the lowest unused n >= 1.
func New(baseDir string) (*Session, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		baseDir = DefaultBaseDir()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}

	for n := 1; ; n++ {
		dir := filepath.Join(baseDir, fmt.Sprintf("%s%d", sessionPrefix, n))
		err := os.Mkdir(dir, 0o755)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
		return &Session{ID: n, Dir: dir, Started: time.Now().UTC()}, nil
	}
}

// Path joins name onto the session directory.
func (s *Session) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

func (s *Session) String() string {
	return fmt.Sprintf("%s%d", sessionPrefix, s.ID)
}

package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// DataDirEnv overrides the data directory when set.
const DataDirEnv = "FOCUSLOCK_DATA_DIR"

const (
	systemDataDir = "/var/lib/focuslock"
	userDataDir   = ".focuslock"
)

// Paths holds the on-disk locations derived from the data directory.
type Paths struct {
	DataDir    string // Encrypted store, key, daemon registry
	ConfigFile string
	LogFile    string
	IsRoot     bool
}

// DetectPaths resolves paths for the current process.
// Root uses a system directory; everyone else uses a hidden directory in the real user's home.
func DetectPaths() *Paths {
	return pathsFor(os.Getenv(DataDirEnv), os.Geteuid() == 0, GetRealUserHome())
}

func pathsFor(override string, isRoot bool, home string) *Paths {
	dir := override
	switch {
	case dir != "":
	case isRoot:
		dir = systemDataDir
	default:
		dir = filepath.Join(home, userDataDir)
	}
	return &Paths{
		DataDir:    dir,
		ConfigFile: filepath.Join(dir, "config.toml"),
		LogFile:    filepath.Join(dir, "daemon.log"),
		IsRoot:     isRoot,
	}
}

// Ensure creates the data directory with owner-only permissions.
func (p *Paths) Ensure() error {
	return os.MkdirAll(p.DataDir, 0700)
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so we use SUDO_USER to find the real user.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}

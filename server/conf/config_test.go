package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCfgDefaults(t *testing.T) {
	cfg := NewCfg()
	require.Equal(t, "0.0.0.0", cfg.BindAddress)
	require.Equal(t, 3306, cfg.Port)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, "root", cfg.User)
	require.Equal(t, "password", cfg.Password)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := NewCfg().Load(filepath.Join(t.TempDir(), "does-not-exist.ini"))
	require.NoError(t, err)
	require.Equal(t, 3306, cfg.Port)
}

func TestLoadEmptyPathKeepsDefaults(t *testing.T) {
	cfg, err := NewCfg().Load("")
	require.NoError(t, err)
	require.Equal(t, "root", cfg.User)
}

func TestLoadParsesMysqldSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "my.ini")
	body := "[mysqld]\nbind-address = 127.0.0.1\nport = 3307\ndatadir = /var/lib/minisql\nuser = admin\npassword = hunter2\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := NewCfg().Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.BindAddress)
	require.Equal(t, 3307, cfg.Port)
	require.Equal(t, "/var/lib/minisql", cfg.DataDir)
	require.Equal(t, "admin", cfg.User)
	require.Equal(t, "hunter2", cfg.Password)
}

func TestLoadIgnoresInvalidBindAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "my.ini")
	require.NoError(t, os.WriteFile(path, []byte("[mysqld]\nbind-address = not-an-ip\n"), 0o644))

	cfg, err := NewCfg().Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.BindAddress)
}

func TestApplyFlagsOverridesOnlySetFlags(t *testing.T) {
	cfg := NewCfg()
	cfg.ApplyFlags(3307, "", "", "", true, false, false, false)
	require.Equal(t, 3307, cfg.Port)
	require.Equal(t, "./data", cfg.DataDir)

	cfg.ApplyFlags(0, "/data2", "admin", "hunter2", false, true, true, true)
	require.Equal(t, 3307, cfg.Port) // unchanged, portSet was false this call
	require.Equal(t, "/data2", cfg.DataDir)
	require.Equal(t, "admin", cfg.User)
	require.Equal(t, "hunter2", cfg.Password)
}

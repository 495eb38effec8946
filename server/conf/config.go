package conf

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/ini.v1"
)

// Cfg is the resolved server configuration: ini-file defaults overridden by
// CLI flags, per spec.md §6's CLI surface.
type Cfg struct {
	Raw *ini.File

	BindAddress string
	Port        int
	DataDir     string
	User        string
	Password    string
}

// NewCfg returns the spec-mandated defaults (port 3306, ./data, root/password),
// used when no config file is present and no flags override them.
func NewCfg() *Cfg {
	return &Cfg{
		Raw:         ini.Empty(),
		BindAddress: "0.0.0.0",
		Port:        3306,
		DataDir:     "./data",
		User:        "root",
		Password:    "password",
	}
}

// Load reads an optional ini file's [mysqld] section over the defaults.
// A missing file is not an error — MiniSQL runs on defaults alone.
func (cfg *Cfg) Load(path string) (*Cfg, error) {
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.Raw = iniFile
	cfg.parseMysqldSection(iniFile.Section("mysqld"))
	return cfg, nil
}

func (cfg *Cfg) parseMysqldSection(section *ini.Section) {
	if k, err := section.GetKey("bind-address"); err == nil {
		if ip := net.ParseIP(k.Value()); ip != nil {
			cfg.BindAddress = k.Value()
		}
	}
	if k, err := section.GetKey("port"); err == nil {
		cfg.Port = k.MustInt(cfg.Port)
	}
	if k, err := section.GetKey("datadir"); err == nil {
		cfg.DataDir = k.MustString(cfg.DataDir)
	}
	if k, err := section.GetKey("user"); err == nil {
		cfg.User = k.MustString(cfg.User)
	}
	if k, err := section.GetKey("password"); err == nil {
		cfg.Password = k.MustString(cfg.Password)
	}
}

// ApplyFlags overlays the CLI flags that were explicitly set (portSet,
// dataDirSet, userSet, passwordSet) onto cfg, matching
// the "--port/--data-dir/--user/--password override the config file"
// precedence from spec.md §6.
func (cfg *Cfg) ApplyFlags(port int, dataDir, user, password string, portSet, dataDirSet, userSet, passwordSet bool) {
	if portSet {
		cfg.Port = port
	}
	if dataDirSet {
		cfg.DataDir = dataDir
	}
	if userSet {
		cfg.User = user
	}
	if passwordSet {
		cfg.Password = password
	}
}

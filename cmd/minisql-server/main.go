package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/minisql/minisql/logger"
	"github.com/minisql/minisql/server/catalog"
	"github.com/minisql/minisql/server/conf"
	"github.com/minisql/minisql/server/engine/granite"
	"github.com/minisql/minisql/server/engine/sandstone"
	"github.com/minisql/minisql/server/executor"
	"github.com/minisql/minisql/server/net"
)

const banner = `
******************************************************************************************
 __  __ _       _  ____   ___  _
|  \/  (_)_ __ (_)/ ___| / _ \| |
| |\/| | | '_ \| |\___ \| | | | |
| |  | | | | | | | ___) | |_| | |___
|_|  |_|_|_| |_|_||____/ \__\_\_____|

 MySQL wire-compatible single-node SQL server
******************************************************************************************
`

func main() {
	var configPath string
	var port int
	var dataDir, user, password string

	root := &cobra.Command{
		Use:   "minisql-server",
		Short: "Run the MiniSQL server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath,
				port, cmd.Flags().Changed("port"),
				dataDir, cmd.Flags().Changed("data-dir"),
				user, cmd.Flags().Changed("user"),
				password, cmd.Flags().Changed("password"),
			)
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to a my.ini-style config file")
	root.Flags().IntVar(&port, "port", 0, "TCP port to bind (overrides config file)")
	root.Flags().StringVar(&dataDir, "data-dir", "", "directory for catalog and storage files (overrides config file)")
	root.Flags().StringVar(&user, "user", "", "accepted username (overrides config file)")
	root.Flags().StringVar(&password, "password", "", "accepted password (overrides config file)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires together config, logging, catalog, both storage engines, and
// the net.Server, then blocks until a shutdown signal is received. Exit
// codes follow spec.md §6: 0 on clean shutdown, 1 on a config error, 2 on
// an unrecoverable storage error during startup.
func run(configPath string, port int, portSet bool, dataDir string, dataDirSet bool, user string, userSet bool, password string, passwordSet bool) error {
	cfg, err := conf.NewCfg().Load(configPath)
	if err != nil {
		os.Exit(1)
	}
	cfg.ApplyFlags(port, dataDir, user, password, portSet, dataDirSet, userSet, passwordSet)

	logConfig := logger.LogConfig{
		ErrorLogPath: filepath.Join(cfg.DataDir, "error.log"),
		InfoLogPath:  filepath.Join(cfg.DataDir, "minisql.log"),
		LogLevel:     "info",
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "creating data dir:", err)
		os.Exit(1)
	}
	if err := logger.InitLogger(logConfig); err != nil {
		fmt.Fprintln(os.Stderr, "initializing logger:", err)
		os.Exit(1)
	}

	fmt.Print(banner)
	logger.Infof("starting MiniSQL on %s:%d, data dir %s", cfg.BindAddress, cfg.Port, cfg.DataDir)

	cat, err := catalog.Open(filepath.Join(cfg.DataDir, "catalog.json"))
	if err != nil {
		logger.Errorf("opening catalog: %v", err)
		os.Exit(2)
	}

	graniteEngine, err := granite.New(filepath.Join(cfg.DataDir, "granite"))
	if err != nil {
		logger.Errorf("opening granite engine: %v", err)
		os.Exit(2)
	}
	sandstoneEngine := sandstone.New(1)

	engines := &executor.Engines{Granite: graniteEngine, Sandstone: sandstoneEngine}
	if err := reopenTables(cat, engines); err != nil {
		logger.Errorf("reopening tables: %v", err)
		os.Exit(2)
	}

	exec := executor.New(cat, engines)

	srv, err := net.New(fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port), exec, cat, cfg.User, cfg.Password)
	if err != nil {
		logger.Errorf("binding listener: %v", err)
		os.Exit(2)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutdown signal received, closing listener")
		_ = srv.Close()
	}()

	logger.Info("MiniSQL server ready")
	if err := srv.Serve(); err != nil {
		logger.Errorf("serve: %v", err)
		return err
	}
	logger.Info("MiniSQL server stopped")
	return nil
}

// reopenTables re-registers every catalog table with its assigned engine on
// startup, since the catalog manifest and each engine's own on-disk state
// are persisted and reloaded independently, then re-creates the table's
// catalog indexes on engines that keep index structures.
func reopenTables(cat *catalog.Catalog, engines *executor.Engines) error {
	for _, t := range cat.Tables() {
		if err := engines.For(t.Engine).Open(t.Name, t.Schema); err != nil {
			return err
		}
		ic, ok := engines.For(t.Engine).(interface{ CreateIndex(string, string, []int, bool) error })
		if !ok {
			continue
		}
		for _, idx := range t.Indexes {
			positions := make([]int, len(idx.Columns))
			for i, col := range idx.Columns {
				positions[i] = t.Schema.IndexOf(col)
			}
			if err := ic.CreateIndex(t.Name, idx.Name, positions, idx.Unique); err != nil {
				return err
			}
		}
	}
	return nil
}

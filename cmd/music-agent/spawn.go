package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/justestif/go-music-agent/internal/config"
)

// spawnDaemon starts "<bin> daemon" detached from the terminal and returns
// its pid. The child logs to the configured log file only.
func spawnDaemon(cfg *config.Config) (int, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return 0, err
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(cfg.Bin, "daemon")
	cmd.Env = append(os.Environ(), cfg.Environ()...)
	cmd.Dir = cfg.DataDir
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = detached()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s daemon: %w", cfg.Bin, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("releasing daemon process: %w", err)
	}
	return pid, nil
}

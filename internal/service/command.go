package service

import (
	"strconv"

	"strategyd/internal/config"
	"strategyd/internal/models"
)

// BuildWorkerArgs maps a dashboard start payload onto the worker's command
// line. Fields left out of the payload produce no flag, so the worker falls
// back to its own defaults. The returned slice starts with the worker command
// itself.
func BuildWorkerArgs(worker config.WorkerConfig, cfg models.StartConfig) []string {
	argv := make([]string, 0, 2+len(worker.Args))
	argv = append(argv, worker.Command)
	argv = append(argv, worker.Args...)

	if len(cfg.SelectedPairs) > 0 {
		argv = append(argv, "--pairs")
		argv = append(argv, cfg.SelectedPairs...)
	}
	if len(cfg.SelectedCrypto) > 0 {
		argv = append(argv, "--crypto")
		argv = append(argv, cfg.SelectedCrypto...)
	}
	if cfg.Email != "" {
		argv = append(argv, "--email", cfg.Email)
	}
	if cfg.Password != "" {
		argv = append(argv, "--password", cfg.Password)
	}
	if cfg.AccountType != "" {
		argv = append(argv, "--account", cfg.AccountType)
	}
	if cfg.PositionSize != nil {
		argv = append(argv, "--position-size", formatSize(*cfg.PositionSize))
	}
	if cfg.PairsPositionSize != nil {
		argv = append(argv, "--pairs-position-size", formatSize(*cfg.PairsPositionSize))
	}
	if cfg.CryptoPositionSize != nil {
		argv = append(argv, "--crypto-position-size", formatSize(*cfg.CryptoPositionSize))
	}
	if cfg.Aggressiveness != "" {
		argv = append(argv, "--aggressiveness", cfg.Aggressiveness)
	}
	return argv
}

func formatSize(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

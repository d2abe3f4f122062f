// Package preflight runs environment checks before the CLI touches the
// store: the data directory must be writable, carry enough free space, and
// the notification endpoint (when configured) must answer.
package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"milltrack/internal/config"
	"milltrack/internal/notifications"
)

// Status classifies one check outcome.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Result is the outcome of one environment check.
type Result struct {
	Name   string
	Status Status
	Detail string
}

// Run executes all checks and returns their results in a stable order.
func Run(ctx context.Context, cfg *config.Config, notifier notifications.Service) []Result {
	results := []Result{
		checkDataDir(cfg),
		checkFreeSpace(cfg),
	}
	results = append(results, checkNotifications(ctx, cfg, notifier))
	return results
}

// Healthy reports whether no check failed. Warnings do not block startup.
func Healthy(results []Result) bool {
	for _, result := range results {
		if result.Status == StatusFail {
			return false
		}
	}
	return true
}

func checkDataDir(cfg *config.Config) Result {
	result := Result{Name: "data directory"}

	if err := cfg.EnsureDirectories(); err != nil {
		result.Status = StatusFail
		result.Detail = err.Error()
		return result
	}

	probe := filepath.Join(cfg.Paths.DataDir, ".milltrack-write-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("%s is not writable: %v", cfg.Paths.DataDir, err)
		return result
	}
	os.Remove(probe)

	result.Status = StatusOK
	result.Detail = cfg.Paths.DataDir
	return result
}

func checkFreeSpace(cfg *config.Config) Result {
	result := Result{Name: "free space"}

	var stat unix.Statfs_t
	if err := unix.Statfs(cfg.Paths.DataDir, &stat); err != nil {
		result.Status = StatusWarn
		result.Detail = fmt.Sprintf("cannot stat %s: %v", cfg.Paths.DataDir, err)
		return result
	}

	freeGiB := float64(stat.Bavail) * float64(stat.Bsize) / (1 << 30)
	required := float64(cfg.Paths.MinFreeSpace)
	result.Detail = fmt.Sprintf("%.1f GiB free, %.0f GiB required", freeGiB, required)
	if freeGiB < required {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusOK
	return result
}

func checkNotifications(ctx context.Context, cfg *config.Config, notifier notifications.Service) Result {
	result := Result{Name: "notifications"}

	if strings.TrimSpace(cfg.Notifications.Topic) == "" {
		result.Status = StatusOK
		result.Detail = "not configured"
		return result
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	if err := notifier.TestNotification(ctx); err != nil {
		result.Status = StatusWarn
		result.Detail = err.Error()
		return result
	}
	result.Status = StatusOK
	result.Detail = cfg.Notifications.Topic
	return result
}

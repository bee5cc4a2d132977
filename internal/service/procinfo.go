package service

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Resource figures for the status report are sampled by shelling out to ps.
// They are a human-readable snapshot for the dashboard, not accounting data;
// any sampling failure reads as "N/A".

func processMemory(pid int) string {
	rss, err := psValue(pid, "rss=")
	if err != nil {
		return "N/A"
	}
	kb, err := strconv.ParseInt(rss, 10, 64)
	if err != nil {
		return "N/A"
	}
	return formatBytes(kb * 1024)
}

func processCPU(pid int) string {
	raw, err := psValue(pid, "%cpu=")
	if err != nil {
		return "N/A"
	}
	cpu, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", cpu)
}

func psValue(pid int, field string) (string, error) {
	out, err := exec.Command("ps", "-o", field, "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func formatBytes(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.1f GB", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

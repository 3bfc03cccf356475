//go:build darwin

package hardware

import (
	"os/exec"
	"strconv"
	"strings"
)

// totalRAMGB reads hw.memsize (reported in bytes).
func totalRAMGB() float64 {
	out, err := exec.Command("sysctl", "-n", "hw.memsize").Output()
	if err != nil {
		return 0
	}
	bytes, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}
	return bytes / (1024 * 1024 * 1024)
}

package hardware

import (
	"os/exec"
	"runtime"
	"strings"
)

// Detect probes the host and builds a Profile. Probes shell out to the
// usual platform tools and treat any failure as "capability absent", so
// Detect itself never fails.
func Detect() Profile {
	p := Profile{
		OS:         runtime.GOOS,
		CPUCores:   runtime.NumCPU(),
		TotalRAMGB: totalRAMGB(),
	}

	p.HasNVIDIAGPU = hasNVIDIAGPU()
	switch runtime.GOOS {
	case "darwin":
		p.HasAppleSilicon = hasAppleSilicon()
	case "linux":
		p.HasAMDGPU = hasAMDGPU()
	}
	return p
}

// hasNVIDIAGPU checks for a working NVIDIA driver. nvidia-smi lists one
// line per GPU and exits non-zero when no device is present.
func hasNVIDIAGPU() bool {
	out, err := exec.Command("nvidia-smi", "-L").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "GPU")
}

func hasAppleSilicon() bool {
	out, err := exec.Command("sysctl", "-n", "machdep.cpu.brand_string").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "Apple")
}

func hasAMDGPU() bool {
	out, err := exec.Command("lspci").Output()
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "VGA") && !strings.Contains(line, "Display") {
			continue
		}
		if strings.Contains(line, "AMD") || strings.Contains(line, "ATI") {
			return true
		}
	}
	return false
}

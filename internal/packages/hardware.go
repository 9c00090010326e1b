package packages

import (
	"os"
	"strconv"
)

// GPUInfo is the minimal hardware view used for option defaults.
type GPUInfo struct {
	VRAMMB int // 0 = unknown/no discrete GPU
}

// Prober detects local GPU hardware. The default implementation reads an
// environment override so headless and CI environments stay deterministic.
type Prober interface {
	Probe() GPUInfo
}

type envProber struct{}

func (envProber) Probe() GPUInfo {
	if v := os.Getenv("PACKD_GPU_VRAM_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return GPUInfo{VRAMMB: n}
		}
	}
	return GPUInfo{}
}

// DefaultProber is the process-wide hardware probe.
var DefaultProber Prober = envProber{}

// lowVRAMThresholdMB is the cutoff below which low-memory launch flags are
// enabled by default.
const lowVRAMThresholdMB = 8192

package engine

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// detectTimeout bounds each nvidia-smi call
const detectTimeout = 2 * time.Second

// Device describes the compute device transcription runs on
type Device struct {
	// Name is the GPU model or "CPU"
	Name string

	// Accelerated is true when an NVIDIA GPU was found
	Accelerated bool

	// Count is the number of GPUs visible to the driver
	Count int

	// MemoryUsedGB and MemoryTotalGB describe the first GPU
	MemoryUsedGB  float64
	MemoryTotalGB float64
}

// CPU is the fallback device
var CPU = Device{Name: "CPU"}

// WhisperDevice is the value passed to whisper's --device flag
func (d Device) WhisperDevice() string {
	if d.Accelerated {
		return "cuda"
	}
	return "cpu"
}

// Label is the one-line device summary used in headers and the UI
func (d Device) Label() string {
	if !d.Accelerated {
		return "CPU"
	}
	return "GPU (" + d.Name + ")"
}

// Summary lists device details for the log
func (d Device) Summary() []string {
	if !d.Accelerated {
		return []string{"Device: CPU (no CUDA-capable GPU detected)"}
	}
	return []string{
		fmt.Sprintf("GPU: %s", d.Name),
		fmt.Sprintf("GPU memory: %.1f / %.1f GB used", d.MemoryUsedGB, d.MemoryTotalGB),
		fmt.Sprintf("GPU count: %d", d.Count),
	}
}

// DeviceDetector reports the current device
type DeviceDetector func(ctx context.Context) Device

// DetectDevice queries nvidia-smi and falls back to CPU when it is missing,
// slow or reports no GPUs
func DetectDevice(ctx context.Context) Device {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return CPU
	}

	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, path,
		"--query-gpu=name,memory.used,memory.total",
		"--format=csv,noheader,nounits",
	).Output()
	if err != nil {
		return CPU
	}

	return parseNvidiaSMI(string(output))
}

// parseNvidiaSMI reads "name, used MiB, total MiB" rows
func parseNvidiaSMI(output string) Device {
	dev := CPU

	for _, raw := range strings.Split(strings.TrimSpace(output), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}

		used, usedErr := strconv.ParseFloat(strings.TrimSpace(parts[len(parts)-2]), 64)
		total, totalErr := strconv.ParseFloat(strings.TrimSpace(parts[len(parts)-1]), 64)
		if usedErr != nil || totalErr != nil {
			continue
		}

		if dev.Count == 0 {
			// GPU names may themselves contain commas
			dev.Name = strings.TrimSpace(strings.Join(parts[:len(parts)-2], ","))
			dev.Accelerated = true
			dev.MemoryUsedGB = used / 1024
			dev.MemoryTotalGB = total / 1024
		}
		dev.Count++
	}

	return dev
}

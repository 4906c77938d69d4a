// Package gpu reports per-device free memory so the dispatcher can place
// each trainer process on the least-loaded GPU at launch time.
package gpu

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Source queries free memory, in MiB, for every visible GPU. Index i of the
// returned slice corresponds to device index i.
type Source interface {
	FreeMemory(ctx context.Context) ([]float64, error)
}

// NvidiaSMI queries device memory through the nvidia-smi CLI.
type NvidiaSMI struct{}

// FreeMemory shells out to nvidia-smi and parses one free-MiB value per line.
func (NvidiaSMI) FreeMemory(ctx context.Context) ([]float64, error) {
	out, err := exec.CommandContext(ctx,
		"nvidia-smi", "--query-gpu=memory.free", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi query failed: %w", err)
	}
	return ParseFreeMemory(string(out))
}

// ParseFreeMemory converts nvidia-smi csv/noheader/nounits output into a
// free-MiB slice, one entry per device line.
func ParseFreeMemory(out string) ([]float64, error) {
	var free []float64
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		mib, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected nvidia-smi output line %q: %w", line, err)
		}
		free = append(free, mib)
	}
	return free, nil
}

// Pick returns the index of the device with the most free memory. Ties go
// to the lowest index. Returns -1 when no devices were reported.
func Pick(free []float64) int {
	if len(free) == 0 {
		return -1
	}
	return floats.MaxIdx(free)
}

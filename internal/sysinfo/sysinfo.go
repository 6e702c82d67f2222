// Package sysinfo reports the CPU and memory actually available to this
// process, honoring cgroup limits when running inside a container.
package sysinfo

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

const (
	cgroupV2CPUMax    = "/sys/fs/cgroup/cpu.max"
	cgroupV1CFSQuota  = "/sys/fs/cgroup/cpu/cpu.cfs_quota_us"
	cgroupV1CFSPeriod = "/sys/fs/cgroup/cpu/cpu.cfs_period_us"
	procMeminfo       = "/proc/meminfo"
)

// AvailableCores returns the number of CPU cores the process may use. Inside
// a container with a CPU quota the quota wins; otherwise the host core count
// is returned. The result is always at least 1.
func AvailableCores() int {
	if cores, ok := coresFromCgroupV2(cgroupV2CPUMax); ok {
		return cores
	}
	if cores, ok := coresFromCgroupV1(cgroupV1CFSQuota, cgroupV1CFSPeriod); ok {
		return cores
	}
	return runtime.NumCPU()
}

func coresFromCgroupV2(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	return parseCPUMax(string(data))
}

// parseCPUMax handles the cgroup v2 "cpu.max" format: "<quota> <period>" or
// "max <period>" when unlimited.
func parseCPUMax(content string) (int, bool) {
	fields := strings.Fields(content)
	if len(fields) != 2 || fields[0] == "max" {
		return 0, false
	}
	quota, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || quota <= 0 {
		return 0, false
	}
	period, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || period <= 0 {
		return 0, false
	}
	return quotaToCores(quota, period), true
}

func coresFromCgroupV1(quotaPath, periodPath string) (int, bool) {
	quotaData, err := os.ReadFile(quotaPath)
	if err != nil {
		return 0, false
	}
	periodData, err := os.ReadFile(periodPath)
	if err != nil {
		return 0, false
	}
	quota, err := strconv.ParseInt(strings.TrimSpace(string(quotaData)), 10, 64)
	if err != nil || quota <= 0 {
		return 0, false
	}
	period, err := strconv.ParseInt(strings.TrimSpace(string(periodData)), 10, 64)
	if err != nil || period <= 0 {
		return 0, false
	}
	return quotaToCores(quota, period), true
}

func quotaToCores(quota, period int64) int {
	cores := int((quota + period - 1) / period)
	if cores < 1 {
		cores = 1
	}
	return cores
}

// Memory summarizes host memory as reported by /proc/meminfo.
type Memory struct {
	TotalMB     int `json:"total_mb"`
	AvailableMB int `json:"available_mb"`
}

// MemoryInfo reads /proc/meminfo. On platforms without it, zero values are
// returned without error so callers can still render a partial report.
func MemoryInfo() Memory {
	data, err := os.ReadFile(procMeminfo)
	if err != nil {
		return Memory{}
	}
	return parseMeminfo(string(data))
}

func parseMeminfo(content string) Memory {
	var mem Memory
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			mem.TotalMB = int(kb / 1024)
		case "MemAvailable:":
			mem.AvailableMB = int(kb / 1024)
		}
	}
	return mem
}

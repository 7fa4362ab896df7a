package collectors

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HostResources describes the machine a recording runs on.
type HostResources struct {
	Platform    string  `json:"platform" yaml:"platform"`
	CPUModel    string  `json:"cpuModel,omitempty" yaml:"cpu_model,omitempty"`
	CPUCores    int     `json:"cpuCores" yaml:"cpu_cores"`
	CPUPercent  float64 `json:"cpuPercent" yaml:"cpu_percent"`
	RAMPercent  float64 `json:"ramPercent" yaml:"ram_percent"`
	RAMUsedMB   uint64  `json:"ramUsedMb" yaml:"ram_used_mb"`
	DiskFreeGB  float64 `json:"diskFreeGb" yaml:"disk_free_gb"`
	DiskPercent float64 `json:"diskPercent" yaml:"disk_percent"`
}

// ProcessResources is the recorder's own footprint.
type ProcessResources struct {
	CPUPercent float64 `json:"cpuPercent" yaml:"cpu_percent"`
	RSSMB      uint64  `json:"rssMb" yaml:"rss_mb"`
	Threads    int32   `json:"threads" yaml:"threads"`
}

type ResourceCollector struct {
	proc *process.Process
}

func NewResourceCollector() *ResourceCollector {
	c := &ResourceCollector{}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		c.proc = p
		// Prime the CPU counter so the first Process call reports a delta.
		_, _ = p.Percent(0)
	}
	return c
}

// Host collects host stats. Disk figures are for the volume holding dir.
// Each field is best effort; the error reports the first failure.
func (c *ResourceCollector) Host(dir string) (*HostResources, error) {
	res := &HostResources{}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	info, err := host.Info()
	keep(err)
	if err == nil {
		res.Platform = info.Platform + " " + info.PlatformVersion
	}

	cpuInfo, err := cpu.Info()
	keep(err)
	if err == nil && len(cpuInfo) > 0 {
		res.CPUModel = cpuInfo[0].ModelName
	}
	if n, err := cpu.Counts(true); err == nil {
		res.CPUCores = n
	}

	cpuPercent, err := cpu.Percent(0, false)
	keep(err)
	if err == nil && len(cpuPercent) > 0 {
		res.CPUPercent = cpuPercent[0]
	}

	vmem, err := mem.VirtualMemory()
	keep(err)
	if err == nil {
		res.RAMPercent = vmem.UsedPercent
		res.RAMUsedMB = vmem.Used / 1024 / 1024
	}

	if dir != "" {
		usage, err := disk.Usage(nearestExisting(dir))
		keep(err)
		if err == nil {
			res.DiskFreeGB = float64(usage.Free) / 1024 / 1024 / 1024
			res.DiskPercent = usage.UsedPercent
		}
	}

	return res, firstErr
}

// Process reports CPU use since the previous call and current RSS.
func (c *ResourceCollector) Process() (*ProcessResources, error) {
	if c.proc == nil {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return nil, err
		}
		c.proc = p
	}

	res := &ProcessResources{}
	pct, err := c.proc.Percent(0)
	if err != nil {
		return nil, err
	}
	res.CPUPercent = pct

	if mi, err := c.proc.MemoryInfo(); err == nil {
		res.RSSMB = mi.RSS / 1024 / 1024
	}
	if n, err := c.proc.NumThreads(); err == nil {
		res.Threads = n
	}
	return res, nil
}

// nearestExisting walks up from dir until it finds a path that exists, so
// disk usage can be reported before the output directory is created.
func nearestExisting(dir string) string {
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(filepath.Clean(dir))
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

package measurement

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacanetworks/telemon/pkg/ping"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

const rootPath = "/"

// SystemBuilder records resource usage of the host. Readings that fail
// are left out of the ping; the ping fails only when all of them do.
type SystemBuilder struct {
	app       App
	cpuUsage  func(ctx context.Context) (float64, error)
	memUsage  func(ctx context.Context) (float64, error)
	diskUsage func(ctx context.Context) (float64, error)
	uptime    func(ctx context.Context) (uint64, error)
	now       func() time.Time
}

func NewSystemBuilder(app App) *SystemBuilder {
	return &SystemBuilder{
		app:       app,
		cpuUsage:  collectCPUUsage,
		memUsage:  collectMemoryUsage,
		diskUsage: collectDiskUsage,
		uptime:    host.UptimeWithContext,
		now:       time.Now,
	}
}

func (b *SystemBuilder) Build(ctx context.Context, pingType string) (ping.Ping, error) {
	measurements := map[string]interface{}{}

	readings := []struct {
		key     string
		collect func(ctx context.Context) (float64, error)
	}{
		{"cpu", b.cpuUsage},
		{"memory", b.memUsage},
		{"disk", b.diskUsage},
	}
	for _, reading := range readings {
		usage, err := reading.collect(ctx)
		if err != nil {
			log.Debug().Err(err).Msgf("Failed to collect %s usage.", reading.key)
			continue
		}
		measurements[reading.key] = usage
	}

	if uptime, err := b.uptime(ctx); err != nil {
		log.Debug().Err(err).Msg("Failed to collect uptime.")
	} else {
		measurements["uptime"] = uptime
	}

	if len(measurements) == 0 {
		return ping.Ping{}, fmt.Errorf("no system measurements could be collected")
	}

	now := b.now()
	measurements["created"] = now.Format(time.DateOnly)

	p := ping.New(pingType, "", measurements)
	p.Created = now

	return finish(p, b.app)
}

func collectCPUUsage(ctx context.Context) (float64, error) {
	usage, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}

	if len(usage) == 0 {
		return 0, fmt.Errorf("no CPU usage data returned")
	}

	return usage[0], nil
}

func collectMemoryUsage(ctx context.Context) (float64, error) {
	memory, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}

	return memory.UsedPercent, nil
}

func collectDiskUsage(ctx context.Context) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, rootPath)
	if err != nil {
		return 0, err
	}

	return usage.UsedPercent, nil
}

package measurement

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacanetworks/telemon/pkg/ping"
	"github.com/shirou/gopsutil/v4/host"
)

const coreVersion = 1

type CoreBuilder struct {
	app      App
	seq      Sequencer
	hostInfo func(ctx context.Context) (*host.InfoStat, error)
	locale   func() string
	now      func() time.Time
}

func NewCoreBuilder(app App, seq Sequencer) *CoreBuilder {
	return &CoreBuilder{
		app:      app,
		seq:      seq,
		hostInfo: host.InfoWithContext,
		locale:   systemLocale,
		now:      time.Now,
	}
}

// Build records the core ping: platform, locale, time zone and the next
// sequence number of pingType.
func (b *CoreBuilder) Build(ctx context.Context, pingType string) (ping.Ping, error) {
	info, err := b.hostInfo(ctx)
	if err != nil {
		return ping.Ping{}, fmt.Errorf("failed to read host info: %w", err)
	}

	seq, err := b.seq.NextSequence(ctx, pingType)
	if err != nil {
		return ping.Ping{}, fmt.Errorf("failed to assign sequence number: %w", err)
	}

	now := b.now()
	_, offset := now.Zone()

	osVersion := info.PlatformVersion
	if osVersion == "" {
		osVersion = info.KernelVersion
	}

	p := ping.New(pingType, "", map[string]interface{}{
		"v":         coreVersion,
		"seq":       seq,
		"locale":    b.locale(),
		"os":        info.OS,
		"osversion": osVersion,
		"device":    info.Platform,
		"arch":      info.KernelArch,
		"created":   now.Format(time.DateOnly),
		"tz":        offset / 60,
	})
	p.Created = now

	return finish(p, b.app)
}

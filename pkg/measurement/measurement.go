package measurement

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/alpacanetworks/telemon/pkg/ping"
)

const (
	CoreType   = "core"
	SystemType = "system"
)

// Builder records a fresh ping of the given type.
type Builder interface {
	Build(ctx context.Context, pingType string) (ping.Ping, error)
}

// Sequencer hands out the per-type sequence numbers of recorded pings.
type Sequencer interface {
	NextSequence(ctx context.Context, pingType string) (int64, error)
}

// App identifies the application a ping is submitted for.
type App struct {
	Name    string
	Version string
	Channel string
}

// Builders returns the builder of every ping type telemon can record.
func Builders(app App, seq Sequencer) map[string]Builder {
	return map[string]Builder{
		CoreType:   NewCoreBuilder(app, seq),
		SystemType: NewSystemBuilder(app),
	}
}

// SubmitPath returns the upload path of a ping:
// /submit/telemetry/{documentId}/{pingType}/{appName}/{appVersion}/{channel}
func SubmitPath(documentID, pingType string, app App) string {
	segments := []string{documentID, pingType, app.Name, app.Version, app.Channel}
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return "/submit/telemetry/" + strings.Join(segments, "/")
}

func finish(p ping.Ping, app App) (ping.Ping, error) {
	p.UploadPath = SubmitPath(p.ID, p.Type, app)
	if err := p.Validate(); err != nil {
		return ping.Ping{}, fmt.Errorf("invalid %s ping: %w", p.Type, err)
	}
	return p, nil
}

// systemLocale reads the POSIX locale environment, e.g. "ko_KR.UTF-8"
// becomes "ko-KR".
func systemLocale() string {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		value := os.Getenv(name)
		if value == "" || value == "C" || value == "POSIX" {
			continue
		}
		if i := strings.IndexAny(value, ".@"); i >= 0 {
			value = value[:i]
		}
		return strings.ReplaceAll(value, "_", "-")
	}
	return "en-US"
}

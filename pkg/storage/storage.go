package storage

import (
	"encoding/json"
	"strconv"

	"github.com/alpacanetworks/telemon/pkg/ping"
)

// Storage is what the upload scheduler reads: pending pings by type and
// the quota values kept under LastUploadTimestampKey/DailyUploadCountKey.
type Storage interface {
	Load(pingType string) ([]ping.Ping, error)
	Get(key string) (interface{}, bool)
}

// Recorder is implemented by stores that account for upload attempts.
// RecordUpload is called once per resolved upload; uploadErr is nil on
// success.
type Recorder interface {
	RecordUpload(p ping.Ping, uploadErr error) error
}

func LastUploadTimestampKey(pingType string) string {
	return pingType + "-lastUploadTimestamp"
}

func DailyUploadCountKey(pingType string) string {
	return pingType + "-dailyUploadCount"
}

func SequenceKey(pingType string) string {
	return pingType + "-seq"
}

// Float64Value converts a stored numeric value. Non-numeric values
// report false.
func Float64Value(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int64Value converts a stored integral value. Fractional floats are
// rejected.
func Int64Value(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

package ping

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/go-playground/validator.v9"
)

var validate = validator.New()

// Ping is one unit of recorded telemetry, queued for upload under its Type.
type Ping struct {
	ID           string                 `json:"id" validate:"required"`
	Type         string                 `json:"type" validate:"required"`
	UploadPath   string                 `json:"upload_path" validate:"required,startswith=/"`
	Measurements map[string]interface{} `json:"measurements"`
	Created      time.Time              `json:"created"`
}

// New returns a ping with a fresh document id.
func New(pingType, uploadPath string, measurements map[string]interface{}) Ping {
	return Ping{
		ID:           uuid.NewString(),
		Type:         pingType,
		UploadPath:   uploadPath,
		Measurements: measurements,
		Created:      time.Now(),
	}
}

// MeasurementsJSON serializes the measurement payload for upload.
func (p Ping) MeasurementsJSON() ([]byte, error) {
	data, err := json.Marshal(p.Measurements)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize measurements of %s ping %s: %w", p.Type, p.ID, err)
	}
	return data, nil
}

func (p Ping) Validate() error {
	return validate.Struct(p)
}

// internal/model/camera_log.go
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CameraEvent é o tipo de evento registrado no log de câmeras.
type CameraEvent string

const (
	EventDiscovery      CameraEvent = "discovery"
	EventCaptureAttempt CameraEvent = "capture_attempt"
	EventCaptureSuccess CameraEvent = "capture_success"
	EventCaptureFailure CameraEvent = "capture_failure"
)

// CameraLog é um evento de discovery ou captura de uma câmera.
type CameraLog struct {
	ID             primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	Event          CameraEvent            `json:"event" bson:"event"`
	IP             string                 `json:"ip" bson:"ip"`
	Port           int                    `json:"port,omitempty" bson:"port,omitempty"`
	MethodUsed     string                 `json:"method_used,omitempty" bson:"method_used,omitempty"`
	ResponseTimeMs int64                  `json:"response_time_ms,omitempty" bson:"response_time_ms,omitempty"`
	Error          string                 `json:"error,omitempty" bson:"error,omitempty"`
	CorrelationID  string                 `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at" bson:"created_at"`
}

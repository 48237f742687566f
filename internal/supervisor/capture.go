// internal/supervisor/capture.go
package supervisor

import (
	"context"
	"time"

	"github.com/sua-org/cam-scout/internal/core"
	"github.com/sua-org/cam-scout/internal/model"
	"github.com/sua-org/cam-scout/internal/mqttclient"
	"github.com/sua-org/cam-scout/internal/storage"
)

// CaptureOptions controla os efeitos colaterais de uma captura.
type CaptureOptions struct {
	Store         bool
	CorrelationID string
}

// captureEvent é o payload MQTT de uma captura, sem a imagem.
type captureEvent struct {
	IP            string             `json:"ip"`
	Port          int                `json:"port"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Result        core.CaptureResult `json:"result"`
	At            time.Time          `json:"at"`
}

// Capture roda a escada para d, guarda o snapshot se pedido e registra os eventos.
func (s *Supervisor) Capture(ctx context.Context, d core.CameraDescriptor, o CaptureOptions) core.CaptureResult {
	s.record(ctx, d, model.EventCaptureAttempt, o.CorrelationID, func(e *model.CameraLog) {
		e.Metadata = map[string]interface{}{"manufacturer": d.Manufacturer, "store": o.Store}
	})

	res := s.opts.Ladder.Capture(ctx, d)

	if res.Succeeded && o.Store && s.opts.Store != nil {
		key := storage.SnapshotKey(d.Address, s.now())
		url, err := s.opts.Store.SaveSnapshot(ctx, key, res.Image, res.ContentType)
		if err != nil {
			// a imagem continua na resposta; só o upload falhou
			s.log.Warn("snapshot upload failed", "ip", d.Address, "key", key, "error", err)
		} else {
			res.SnapshotURL = url
		}
	}

	if res.Succeeded {
		s.record(ctx, d, model.EventCaptureSuccess, o.CorrelationID, func(e *model.CameraLog) {
			e.MethodUsed = res.MethodUsed
			e.ResponseTimeMs = res.ElapsedMs
			e.Metadata = map[string]interface{}{
				"resolution":      res.Resolution,
				"file_size_bytes": res.FileSizeBytes,
				"snapshot_url":    res.SnapshotURL,
			}
		})
	} else {
		s.record(ctx, d, model.EventCaptureFailure, o.CorrelationID, func(e *model.CameraLog) {
			e.ResponseTimeMs = res.ElapsedMs
			e.Error = res.Error
			e.Metadata = map[string]interface{}{
				"error_kind": string(res.ErrorKind),
				"attempts":   len(res.Attempts),
			}
		})
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveCapture(res)
	}

	if s.opts.MQTT != nil {
		ev := captureEvent{
			IP:            d.Address,
			Port:          d.Port,
			CorrelationID: o.CorrelationID,
			Result:        res,
			At:            s.now().UTC(),
		}
		if err := s.opts.MQTT.PublishJSON(mqttclient.TopicCapture, false, ev); err != nil {
			s.log.Warn("failed to publish capture result", "ip", d.Address, "error", err)
		}
	}

	s.log.Info("capture finished",
		"ip", d.Address,
		"success", res.Succeeded,
		"method", res.MethodUsed,
		"elapsed_ms", res.ElapsedMs,
		"correlation_id", o.CorrelationID,
	)
	return res
}

func (s *Supervisor) record(ctx context.Context, d core.CameraDescriptor, ev model.CameraEvent, correlationID string, fill func(*model.CameraLog)) {
	if s.opts.Logs == nil {
		return
	}
	entry := &model.CameraLog{
		Event:         ev,
		IP:            d.Address,
		Port:          d.Port,
		CorrelationID: correlationID,
		CreatedAt:     s.now().UTC(),
	}
	if fill != nil {
		fill(entry)
	}
	// o log não deve cair junto com o request do cliente
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.opts.Logs.Create(lctx, entry); err != nil {
		s.log.Warn("failed to record camera event", "event", ev, "ip", d.Address, "error", err)
	}
}

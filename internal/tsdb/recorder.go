package tsdb

import (
	"log"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/strefethen/heos-hub-go/internal/host"
	"github.com/strefethen/heos-hub-go/internal/mediaplayer"
)

// Measurement is the InfluxDB measurement for entity state.
const Measurement = "media_player"

// PointWriter accepts points; *Client and the influx WriteAPI implement it.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// StateSource feeds state events; *host.Host implements it.
type StateSource interface {
	Subscribe(listener host.StateListener) func()
}

// Recorder writes one point per media-player state event.
type Recorder struct {
	writer PointWriter
	source StateSource
	logger *log.Logger
	now    func() time.Time

	mu          sync.Mutex
	unsubscribe func()
}

func NewRecorder(writer PointWriter, source StateSource, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{writer: writer, source: source, logger: logger, now: time.Now}
}

func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe == nil {
		r.unsubscribe = r.source.Subscribe(r.record)
	}
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// record runs on the host dispatcher; WritePoint does not block.
func (r *Recorder) record(event host.StateEvent) {
	if point := PointFor(event, r.now); point != nil {
		r.writer.WritePoint(point)
	}
}

// PointFor converts a state event to a point. Removals and events without a
// media-player snapshot produce nil.
func PointFor(event host.StateEvent, now func() time.Time) *write.Point {
	if event.Removed {
		return nil
	}
	snapshot, ok := event.State.(mediaplayer.Snapshot)
	if !ok {
		return nil
	}

	at := event.UpdatedAt
	if at.IsZero() {
		at = now()
	}
	return write.NewPoint(
		Measurement,
		map[string]string{
			"entity_id": event.EntityID,
			"state":     string(snapshot.State),
		},
		map[string]any{
			"volume_level":   snapshot.VolumeLevel,
			"muted":          snapshot.IsVolumeMuted,
			"available":      event.Available,
			"media_position": snapshot.MediaPosition,
		},
		at,
	)
}

package tsdb

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/heos-hub-go/internal/config"
	"github.com/strefethen/heos-hub-go/internal/host"
	"github.com/strefethen/heos-hub-go/internal/mediaplayer"
)

type fakeWriter struct {
	mu     sync.Mutex
	points []*write.Point
}

func (f *fakeWriter) WritePoint(point *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, point)
}

type fakeSource struct {
	listener host.StateListener
}

func (f *fakeSource) Subscribe(listener host.StateListener) func() {
	f.listener = listener
	return func() { f.listener = nil }
}

func TestPointFor(t *testing.T) {
	at := time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)
	event := host.StateEvent{
		EntityID:  "player-1",
		Available: true,
		UpdatedAt: at,
		State: mediaplayer.Snapshot{
			EntityID:      "player-1",
			State:         mediaplayer.StatePlaying,
			VolumeLevel:   0.5,
			MediaPosition: 12.5,
		},
	}

	point := PointFor(event, time.Now)
	require.NotNil(t, point)
	require.Equal(t, Measurement, point.Name())
	require.Equal(t, at, point.Time())

	tags := map[string]string{}
	for _, tag := range point.TagList() {
		tags[tag.Key] = tag.Value
	}
	require.Equal(t, map[string]string{"entity_id": "player-1", "state": "playing"}, tags)

	fields := map[string]any{}
	for _, field := range point.FieldList() {
		fields[field.Key] = field.Value
	}
	require.Equal(t, 0.5, fields["volume_level"])
	require.Equal(t, false, fields["muted"])
	require.Equal(t, true, fields["available"])
	require.Equal(t, 12.5, fields["media_position"])

	line := write.PointToLineProtocol(point, time.Second)
	require.Contains(t, line, "media_player,entity_id=player-1,state=playing ")
}

func TestPointForSkipsRemovalsAndForeignState(t *testing.T) {
	require.Nil(t, PointFor(host.StateEvent{EntityID: "player-1", Removed: true}, time.Now))
	require.Nil(t, PointFor(host.StateEvent{EntityID: "x", State: map[string]any{"state": "on"}}, time.Now))
}

func TestPointForDefaultsTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	point := PointFor(host.StateEvent{EntityID: "group-1", State: mediaplayer.Snapshot{State: mediaplayer.StatePaused}},
		func() time.Time { return now })
	require.Equal(t, now, point.Time())
}

func TestRecorderWritesOnEvents(t *testing.T) {
	writer := &fakeWriter{}
	source := &fakeSource{}
	recorder := NewRecorder(writer, source, log.New(io.Discard, "", 0))

	recorder.Start()
	require.NotNil(t, source.listener)
	source.listener(host.StateEvent{EntityID: "player-1", State: mediaplayer.Snapshot{State: mediaplayer.StateIdle}})
	source.listener(host.StateEvent{EntityID: "player-1", Removed: true})
	require.Len(t, writer.points, 1)

	recorder.Stop()
	require.Nil(t, source.listener)
	recorder.Stop()
}

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxConfig{Enabled: false}, nil)
	require.ErrorIs(t, err, ErrDisabled)
}

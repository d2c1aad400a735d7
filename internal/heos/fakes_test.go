package heos

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

type fakeDevice struct {
	mu sync.Mutex

	id        int
	name      string
	playState string
	volume    int
	mute      string
	title     string
	artist    string
	album     string
	imageURL  string
	mediaID   string
	duration  int
	position  int
	updatedAt time.Time
	online    bool
	source    string
	sources   []string
	favorites []Favorite
	music     []MusicSource
	cmdErr    error

	calls     []string
	listeners map[SubscriptionID]func()
	nextSub   int
}

func newFakeDevice(id int, name string) *fakeDevice {
	return &fakeDevice{id: id, name: name, online: true, mute: "off", listeners: map[SubscriptionID]func(){}}
}

func (d *fakeDevice) ID() int                      { return d.id }
func (d *fakeDevice) Name() string                 { return d.name }
func (d *fakeDevice) Volume() int                  { return d.volume }
func (d *fakeDevice) Mute() string                 { return d.mute }
func (d *fakeDevice) MediaTitle() string           { return d.title }
func (d *fakeDevice) MediaArtist() string          { return d.artist }
func (d *fakeDevice) MediaAlbum() string           { return d.album }
func (d *fakeDevice) MediaImageURL() string        { return d.imageURL }
func (d *fakeDevice) MediaID() string              { return d.mediaID }
func (d *fakeDevice) Duration() int                { return d.duration }
func (d *fakeDevice) CurrentPosition() int         { return d.position }
func (d *fakeDevice) PositionUpdatedAt() time.Time { return d.updatedAt }
func (d *fakeDevice) Online() bool                 { return d.online }
func (d *fakeDevice) SourceName() string           { return d.source }
func (d *fakeDevice) SourceList() []string         { return d.sources }
func (d *fakeDevice) Favorites() []Favorite        { return d.favorites }
func (d *fakeDevice) MusicSources() []MusicSource  { return d.music }

func (d *fakeDevice) PlayState() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playState
}

func (d *fakeDevice) setPlayState(state string) {
	d.mu.Lock()
	d.playState = state
	d.mu.Unlock()
}

func (d *fakeDevice) record(call string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
	return d.cmdErr
}

func (d *fakeDevice) recorded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDevice) Play(ctx context.Context) error         { return d.record("play") }
func (d *fakeDevice) Pause(ctx context.Context) error        { return d.record("pause") }
func (d *fakeDevice) Stop(ctx context.Context) error         { return d.record("stop") }
func (d *fakeDevice) PlayNext(ctx context.Context) error     { return d.record("next") }
func (d *fakeDevice) PlayPrevious(ctx context.Context) error { return d.record("previous") }
func (d *fakeDevice) ToggleMute(ctx context.Context) error   { return d.record("toggle_mute") }
func (d *fakeDevice) RequestUpdate(ctx context.Context) error {
	return d.record("request_update")
}
func (d *fakeDevice) SetVolume(ctx context.Context, volume int) error {
	return d.record(fmt.Sprintf("set_volume:%d", volume))
}
func (d *fakeDevice) PlayFavorite(ctx context.Context, id string) error {
	return d.record("play_favorite:" + id)
}

func (d *fakeDevice) Subscribe(listener func()) SubscriptionID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextSub++
	id := SubscriptionID(fmt.Sprintf("sub-%d", d.nextSub))
	d.listeners[id] = listener
	return id
}

func (d *fakeDevice) Unsubscribe(id SubscriptionID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, id)
}

func (d *fakeDevice) listenerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

func (d *fakeDevice) fire() {
	d.mu.Lock()
	listeners := make([]func(), 0, len(d.listeners))
	for _, listener := range d.listeners {
		listeners = append(listeners, listener)
	}
	d.mu.Unlock()
	for _, listener := range listeners {
		listener()
	}
}

type fakeHub struct {
	mu        sync.Mutex
	scheduled []string
	tasks     []string
	jobs      int
	jobErr    error
}

func (h *fakeHub) ScheduleUpdate(entityID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scheduled = append(h.scheduled, entityID)
}

// CreateTask runs fn inline so tests observe its effects immediately.
func (h *fakeHub) CreateTask(name string, fn func(ctx context.Context) error) {
	h.mu.Lock()
	h.tasks = append(h.tasks, name)
	h.mu.Unlock()
	_ = fn(context.Background())
}

func (h *fakeHub) AddExecutorJob(job func() error) error {
	h.mu.Lock()
	if h.jobErr != nil {
		h.mu.Unlock()
		return h.jobErr
	}
	h.jobs++
	h.mu.Unlock()
	_ = job()
	return nil
}

type fakeController struct {
	players     []Device
	groups      []Device
	onNewDevice func(Device, DeviceKind)
	closed      int
}

func (c *fakeController) Players() []Device { return c.players }
func (c *fakeController) Groups() []Device  { return c.groups }
func (c *fakeController) OnNewDevice(callback func(Device, DeviceKind)) {
	c.onNewDevice = callback
}
func (c *fakeController) Close() error {
	c.closed++
	return nil
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

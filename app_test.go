package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/roomplan/plan"
	"github.com/kwv/roomplan/store"
)

// testRoom returns a small room: two walls, a door and a table.
func testRoom(name string) *plan.Room {
	return &plan.Room{
		Name: name,
		Walls: []plan.Surface{
			{ID: "w1", Category: plan.CategoryWall, Dimensions: [3]float64{4, 2.5, 0}, Transform: plan.PoseFromYaw(0, 0, 0, -2)},
			{ID: "w2", Category: plan.CategoryWall, Dimensions: [3]float64{3, 2.5, 0}, Transform: plan.PoseFromYaw(math.Pi/2, 2, 0, 0)},
		},
		Doors: []plan.Surface{
			{ID: "d1", Category: plan.CategoryDoor, Dimensions: [3]float64{0.9, 2, 0}, Transform: plan.PoseFromYaw(0, 1, 0, -2)},
		},
		Objects: []plan.Object{
			{ID: "t1", Category: "table", Dimensions: [3]float64{1, 0.75, 0.6}, Transform: plan.IdentityPose()},
		},
	}
}

func roomJSON(t *testing.T, room *plan.Room) []byte {
	t.Helper()
	data, err := json.Marshal(room)
	require.NoError(t, err)
	return data
}

// Helper function to save a test room to <dir>/<name>.room.json
func saveTestRoomToFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name+roomFileSuffix)
	require.NoError(t, os.WriteFile(path, roomJSON(t, testRoom(name)), 0o644))
	return path
}

func newTestApp(t *testing.T, dir string) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp()
	app.Out = &out
	app.DataDir = dir
	app.OutputDir = filepath.Join(dir, "out")
	return app, &out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp returned nil")
		return
	}
	if app.StateTracker == nil {
		t.Error("StateTracker should be initialized")
	}
	if app.HttpPort != defaultHTTPPort || app.RenderFormat != "svg" {
		t.Errorf("unexpected defaults: port=%d format=%s", app.HttpPort, app.RenderFormat)
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	opts := AppOptions{
		DataDir:      "/test/data",
		ConfigFile:   "test-config.yaml",
		OutputDir:    "/test/out",
		RenderFormat: "geojson",
		Unit:         "inches",
		Scale:        2,
		HttpPort:     9000,
		MqttMode:     true,
		HttpMode:     true,
	}
	app.ApplyOptions(opts)

	if app.DataDir != opts.DataDir || app.ConfigFile != opts.ConfigFile || app.OutputDir != opts.OutputDir {
		t.Errorf("paths not applied: %+v", app)
	}
	if app.RenderFormat != "geojson" || app.Unit != "inches" || app.Scale != 2 {
		t.Errorf("render/measure options not applied: %+v", app)
	}
	if app.HttpPort != 9000 || !app.MqttMode || !app.HttpMode {
		t.Errorf("service options not applied: %+v", app)
	}
}

// ---------------------------------------------------------------------------
// config
// ---------------------------------------------------------------------------

func TestLoadConfig_ResolvesAgainstDataDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("units: feet\nstyle:\n  scalingFactor: 50\n"), 0o644))

	app, _ := newTestApp(t, dir)
	require.NoError(t, app.prepare())

	assert.Equal(t, plan.UnitFeet, app.unit)
	assert.Equal(t, 50.0, app.StateTracker.Projector().Style().ScalingFactor)
}

func TestLoadConfig_MissingUsesDefaults(t *testing.T) {
	app, _ := newTestApp(t, t.TempDir())
	require.NoError(t, app.prepare())
	assert.Equal(t, plan.UnitMeters, app.unit)
	assert.Empty(t, app.Config.Sources)
}

func TestPrepare_UnitFlagOverridesConfig(t *testing.T) {
	app, _ := newTestApp(t, t.TempDir())
	app.Config = &plan.Config{Units: "feet"}
	app.Unit = "inches"
	require.NoError(t, app.prepare())
	assert.Equal(t, plan.UnitInches, app.unit)

	app.Unit = "furlongs"
	assert.Error(t, app.prepare())
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("storage:\n  driver: mongo\n"), 0o644))
	app, _ := newTestApp(t, dir)
	err := app.prepare()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

// ---------------------------------------------------------------------------
// CLI modes
// ---------------------------------------------------------------------------

func TestRunList(t *testing.T) {
	dir := t.TempDir()
	saveTestRoomToFile(t, dir, "kitchen")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken"+roomFileSuffix), []byte("{"), 0o644))

	app, out := newTestApp(t, dir)
	require.NoError(t, app.RunList())

	s := out.String()
	assert.Contains(t, s, "Found 2 room snapshot(s)")
	assert.Contains(t, s, "=== kitchen ===")
	assert.Contains(t, s, "Walls: 2, Doors: 1, Windows: 0, Openings: 0")
	assert.Contains(t, s, "Wall length: 7.00m")
	assert.Contains(t, s, "Objects: 1 [table]")
	assert.Contains(t, s, "=== broken ===")
	assert.Contains(t, s, "ERROR:")
}

func TestRunList_NoFiles(t *testing.T) {
	app, _ := newTestApp(t, t.TempDir())
	err := app.RunList()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no *.room.json files")
}

func TestRunProject(t *testing.T) {
	dir := t.TempDir()
	saveTestRoomToFile(t, dir, "kitchen")

	app, out := newTestApp(t, dir)
	require.NoError(t, app.RunProject())

	s := out.String()
	assert.Contains(t, s, "=== kitchen:")
	assert.Contains(t, s, "door-arc")
	assert.Contains(t, s, "dimension")
	assert.Contains(t, s, `"4.00m"`)
	assert.Contains(t, s, "polygon")

	_, ok := app.StateTracker.GetFloorPlan("kitchen")
	assert.True(t, ok)
}

func TestRunRender_AllFormats(t *testing.T) {
	dir := t.TempDir()
	saveTestRoomToFile(t, dir, "kitchen")

	app, out := newTestApp(t, dir)
	app.RenderFormat = "all"
	require.NoError(t, app.RunRender())

	base := filepath.Join(app.OutputDir, "kitchen.floorplan.")
	assert.Contains(t, out.String(), "Wrote "+base+"svg")

	svg, err := os.ReadFile(base + "svg")
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")

	pngData, err := os.ReadFile(base + "png")
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(pngData))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)

	gj, err := os.ReadFile(base + "geojson")
	require.NoError(t, err)
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(gj, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.NotEmpty(t, fc.Features)
}

func TestRunRender_UnknownFormat(t *testing.T) {
	dir := t.TempDir()
	saveTestRoomToFile(t, dir, "kitchen")

	app, _ := newTestApp(t, dir)
	app.RenderFormat = "pdf"
	assert.Error(t, app.RunRender())
}

func TestRunMeasure(t *testing.T) {
	app, out := newTestApp(t, t.TempDir())
	app.Unit = "feet"
	require.NoError(t, app.RunMeasure("0,0,0:0.5,0,0"))
	assert.Contains(t, out.String(), `Distance: 1' 7.7" (0.5000 m)`)

	out.Reset()
	app.Unit = "meters"
	app.Scale = 0.5
	require.NoError(t, app.RunMeasure("0,0,0 : 0,3,4"))
	assert.Contains(t, out.String(), "Distance: 10.00 m")
}

func TestParseMeasureSpec(t *testing.T) {
	a, b, err := parseMeasureSpec("1,2,3:4,5,6")
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.X)
	assert.Equal(t, 6.0, b.Z)

	for _, bad := range []string{"", "1,2,3", "1,2:3,4,5", "1,2,3:4,5,x", "1,2,3:4,5,6:7,8,9"} {
		_, _, err := parseMeasureSpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestWatch_RerendersOnWrite(t *testing.T) {
	dir := t.TempDir()
	app, _ := newTestApp(t, dir)
	require.NoError(t, app.prepare())

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- app.watch(ctx, ready) }()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("watch exited early: %v", err)
	}

	path := saveTestRoomToFile(t, dir, "hall")
	svgPath := filepath.Join(app.OutputDir, "hall.floorplan.svg")
	waitFor(t, "hall to render", func() bool {
		_, err := os.Stat(svgPath)
		_, ok := app.StateTracker.GetFloorPlan("hall")
		return err == nil && ok
	})

	// Files without the snapshot suffix are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	require.NoError(t, os.Remove(path))
	waitFor(t, "hall to be forgotten", func() bool {
		_, ok := app.StateTracker.GetFloorPlan("hall")
		return !ok
	})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

// ---------------------------------------------------------------------------
// service wiring
// ---------------------------------------------------------------------------

func TestStartService_RestoresStoredAndDiskRooms(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := store.NewFileStore(filepath.Join(dir, "models"))
	require.NoError(t, err)
	older := testRoom("den")
	older.Walls = older.Walls[:1]
	_, err = fs.Save(ctx, "den", older)
	require.NoError(t, err)
	_, err = fs.Save(ctx, "den", testRoom("den"))
	require.NoError(t, err)

	saveTestRoomToFile(t, dir, "kitchen")

	app, out := newTestApp(t, dir)
	app.Config = &plan.Config{}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	require.NoError(t, app.startService(sctx))
	defer app.shutdown()

	assert.Equal(t, []string{"den", "kitchen"}, app.StateTracker.RoomNames())
	den, ok := app.StateTracker.GetRoom("den")
	require.True(t, ok)
	assert.Len(t, den.Walls, 2, "newest stored snapshot wins")
	assert.Contains(t, out.String(), "Loaded 1 stored and 1 on-disk room snapshots")
}

func TestStartService_PollsAPISources(t *testing.T) {
	payload := roomJSON(t, testRoom("office"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	app, _ := newTestApp(t, dir)
	url := srv.URL
	app.Config = &plan.Config{
		Sources: []plan.SourceConfig{{ID: "office", ApiURL: &url}},
		Storage: plan.StorageConfig{Driver: "sqlite"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.startService(ctx))
	defer app.shutdown()

	waitFor(t, "office snapshot", func() bool {
		_, ok := app.StateTracker.GetFloorPlan("office")
		return ok
	})

	recs, err := app.Store.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "office", recs[0].Name)
	_, err = os.Stat(filepath.Join(dir, "models", "rooms.db"))
	assert.NoError(t, err)
}

func TestStartService_MQTTWithoutBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	app, _ := newTestApp(t, t.TempDir())
	app.Config = &plan.Config{}
	app.MqttMode = true

	err := app.startService(context.Background())
	defer app.shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MQTT broker not configured")
}

func TestHandleSnapshot_PublishesAndStores(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	dir := t.TempDir()
	app, _ := newTestApp(t, dir)
	app.Out = io.Discard

	mock := plan.NewMockClient()
	mock.SetConnected(true)
	app.Publisher = plan.NewPublisher(mock)
	st, err := store.NewFileStore(filepath.Join(dir, "models"))
	require.NoError(t, err)
	app.Store = st

	app.handleSnapshot("kitchen", testRoom("kitchen"), nil)
	assert.Len(t, mock.MessagesOn("roomplan/kitchen/floorplan"), 1)
	assert.Len(t, mock.MessagesOn("roomplan/rooms"), 1)

	recs, err := st.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	// Decode errors and empty snapshots leave state and broker untouched.
	app.handleSnapshot("kitchen", nil, errors.New("bad payload"))
	app.handleSnapshot("kitchen", &plan.Room{}, nil)
	assert.Len(t, mock.MessagesOn("roomplan/kitchen/floorplan"), 1)
	room, _ := app.StateTracker.GetRoom("kitchen")
	assert.Len(t, room.Walls, 2)
}

func TestDescribePrimitive(t *testing.T) {
	fp := plan.NewProjector(plan.DefaultStyle()).Project(testRoom("kitchen"))
	seen := map[string]bool{}
	for _, p := range fp.Primitives {
		line := describePrimitive(p)
		seen[strings.Fields(line)[0]] = true
	}
	for _, kind := range []string{"line", "arc", "dimension", "label", "polygon"} {
		assert.True(t, seen[kind], "missing %s", kind)
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kwv/roomplan/plan"
	"github.com/kwv/roomplan/store"
)

const (
	roomFileSuffix     = ".room.json"
	defaultConfigFile  = "config.yaml"
	defaultHTTPPort    = 8080
	sourcePollInterval = 5 * time.Minute
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *plan.Config
	StateTracker *plan.StateTracker
	MQTTClient   *plan.MQTTClient
	Publisher    *plan.Publisher
	Store        store.Store
	Out          io.Writer

	// CLI Flags (effectively dependencies)
	DataDir      string
	ConfigFile   string
	OutputDir    string
	RenderFormat string
	Unit         string
	Scale        float64
	HttpPort     int
	MqttMode     bool
	HttpMode     bool

	unit   plan.Unit
	server *http.Server
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: plan.NewStateTracker(nil, plan.UnitMeters),
		Out:          os.Stdout,
		DataDir:      ".",
		ConfigFile:   defaultConfigFile,
		OutputDir:    ".",
		RenderFormat: "svg",
		Scale:        1,
		HttpPort:     defaultHTTPPort,
		unit:         plan.UnitMeters,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.DataDir = opts.DataDir
	a.ConfigFile = opts.ConfigFile
	a.OutputDir = opts.OutputDir
	a.RenderFormat = opts.RenderFormat
	a.Unit = opts.Unit
	a.Scale = opts.Scale
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig reads the config file, resolving the default name against
// DataDir. A missing file yields an empty config.
func (a *App) loadConfig() (*plan.Config, error) {
	path := a.ConfigFile
	if path == "" {
		path = defaultConfigFile
	}
	if a.DataDir != "" && a.DataDir != "." && path == defaultConfigFile {
		path = filepath.Join(a.DataDir, defaultConfigFile)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: no config at %s, using defaults", path)
		return &plan.Config{}, nil
	}

	cfg, err := plan.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w (looked at %s)", err, path)
	}
	log.Printf("Loaded config from %s", path)
	return cfg, nil
}

// prepare loads the config once and rebuilds the state tracker with the
// configured style and unit.
func (a *App) prepare() error {
	if a.Config == nil {
		cfg, err := a.loadConfig()
		if err != nil {
			return err
		}
		a.Config = cfg
	}

	style, err := a.Config.BuildStyle()
	if err != nil {
		return err
	}

	unit := a.Config.Unit()
	if a.Unit != "" {
		u, err := plan.ParseUnit(a.Unit)
		if err != nil {
			return err
		}
		unit = u
	}
	a.unit = unit
	a.StateTracker = plan.NewStateTracker(plan.NewProjector(style), unit)
	return nil
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

// roomFiles returns the snapshot files in DataDir, sorted.
func (a *App) roomFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(a.DataDir, "*"+roomFileSuffix))
	if err != nil {
		return nil, fmt.Errorf("finding room files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no *%s files found in %s", roomFileSuffix, a.DataDir)
	}
	return files, nil
}

func isRoomFile(path string) bool {
	return strings.HasSuffix(path, roomFileSuffix)
}

// roomName derives the room key from a snapshot file name.
func roomName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), roomFileSuffix)
}

// RunList summarizes every snapshot in DataDir
func (a *App) RunList() error {
	files, err := a.roomFiles()
	if err != nil {
		return err
	}
	out := a.out()
	fmt.Fprintf(out, "Found %d room snapshot(s)\n\n", len(files))

	for _, file := range files {
		fmt.Fprintf(out, "=== %s ===\n", roomName(file))
		fmt.Fprintf(out, "File: %s\n", file)

		room, err := plan.DecodeRoomFile(file)
		if err != nil {
			fmt.Fprintf(out, "ERROR: %v\n\n", err)
			continue
		}

		s := plan.Summarize(room)
		fmt.Fprintf(out, "Walls: %d, Doors: %d, Windows: %d, Openings: %d\n",
			s.SurfaceCounts[plan.CategoryWall], s.SurfaceCounts[plan.CategoryDoor],
			s.SurfaceCounts[plan.CategoryWindow], s.SurfaceCounts[plan.CategoryOpening])
		if s.UnknownSurfaces > 0 {
			fmt.Fprintf(out, "Unknown surfaces (drawn as walls): %d\n", s.UnknownSurfaces)
		}
		fmt.Fprintf(out, "Wall length: %s\n", plan.FormatMeters(s.WallLengthM))
		fmt.Fprintf(out, "Objects: %d", s.ObjectCount)
		if len(s.ObjectTypes) > 0 {
			fmt.Fprintf(out, " [%s]", strings.Join(s.ObjectTypes, ", "))
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out)
	}
	return nil
}

// RunProject prints the draw primitives of every snapshot in DataDir
func (a *App) RunProject() error {
	if err := a.prepare(); err != nil {
		return err
	}
	files, err := a.roomFiles()
	if err != nil {
		return err
	}
	out := a.out()

	for _, file := range files {
		name := roomName(file)
		room, err := plan.DecodeRoomFile(file)
		if err != nil {
			fmt.Fprintf(out, "=== %s ===\nERROR: %v\n\n", name, err)
			continue
		}
		fp := a.StateTracker.UpdateRoom(name, room)

		fmt.Fprintf(out, "=== %s: %d primitives ===\n", name, len(fp.Primitives))
		for _, p := range fp.Primitives {
			fmt.Fprintln(out, describePrimitive(p))
		}
		fmt.Fprintln(out)
	}
	return nil
}

// describePrimitive formats one primitive on a single line.
func describePrimitive(prim plan.Primitive) string {
	switch p := prim.(type) {
	case plan.LineSegment:
		return fmt.Sprintf("line      %-16s z=%-3g (%.1f,%.1f)-(%.1f,%.1f) width=%g cap=%s",
			p.Role, p.ZOrder, p.From.X, p.From.Y, p.To.X, p.To.Y, p.Width, p.Cap)
	case plan.Arc:
		return fmt.Sprintf("arc       %-16s z=%-3g center=(%.1f,%.1f) r=%.1f start=%.3f end=%.3f dashed=%v",
			p.Role, p.ZOrder, p.Center.X, p.Center.Y, p.Radius, p.StartAngle, p.EndAngle, p.Dashed())
	case plan.DimensionAnnotation:
		return fmt.Sprintf("dimension %-16s z=%-3g (%.1f,%.1f)-(%.1f,%.1f) %s offset=%s",
			plan.RoleDimension, p.ZOrder, p.From.X, p.From.Y, p.To.X, p.To.Y, p.Label, p.Offset)
	case plan.Label:
		return fmt.Sprintf("label     %-16s z=%-3g %q at (%.1f,%.1f) align=%s",
			p.Role, p.ZOrder, p.Text, p.Position.X, p.Position.Y, p.Align)
	case plan.Polygon:
		return fmt.Sprintf("polygon   %-16s z=%-3g %d points", p.Role, p.ZOrder, len(p.Points))
	default:
		return fmt.Sprintf("%-9s z=%g", prim.Kind(), prim.Z())
	}
}

// RunRender writes every snapshot in DataDir to OutputDir in RenderFormat
func (a *App) RunRender() error {
	if err := a.prepare(); err != nil {
		return err
	}
	files, err := a.roomFiles()
	if err != nil {
		return err
	}

	rendered := 0
	for _, file := range files {
		paths, err := a.renderFile(file)
		if err != nil {
			log.Printf("Warning: skipping %s: %v", file, err)
			continue
		}
		for _, p := range paths {
			fmt.Fprintf(a.out(), "Wrote %s\n", p)
		}
		rendered++
	}
	if rendered == 0 {
		return fmt.Errorf("no room snapshots could be rendered")
	}
	return nil
}

// renderFile decodes, projects and writes one snapshot.
func (a *App) renderFile(path string) ([]string, error) {
	room, err := plan.DecodeRoomFile(path)
	if err != nil {
		return nil, err
	}
	name := roomName(path)
	fp := a.StateTracker.UpdateRoom(name, room)
	return writePlan(fp, name, a.RenderFormat, a.OutputDir)
}

// writePlan writes fp as <dir>/<name>.floorplan.<ext> for each requested
// format and returns the written paths.
func writePlan(fp *plan.FloorPlan, name, format, dir string) ([]string, error) {
	var formats []string
	switch format {
	case "", "svg":
		formats = []string{"svg"}
	case "png", "geojson":
		formats = []string{format}
	case "all":
		formats = []string{"svg", "png", "geojson"}
	default:
		return nil, fmt.Errorf("unknown render format %q (want svg, png, geojson, or all)", format)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	var paths []string
	for _, f := range formats {
		path := filepath.Join(dir, fmt.Sprintf("%s.floorplan.%s", name, f))
		if err := writePlanFile(fp, f, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writePlanFile(fp *plan.FloorPlan, format, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if err := encodePlan(file, fp, format); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}

// encodePlan writes fp to w in one of svg, png or geojson.
func encodePlan(w io.Writer, fp *plan.FloorPlan, format string) error {
	switch format {
	case "svg":
		return plan.NewVectorRenderer(fp).RenderToSVG(w)
	case "png":
		return plan.NewVectorRenderer(fp).RenderToPNG(w)
	case "geojson":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan.FloorPlanToFeatureCollection(fp))
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// RunMeasure measures the distance between two model points given as
// "x1,y1,z1:x2,y2,z2".
func (a *App) RunMeasure(spec string) error {
	if err := a.prepare(); err != nil {
		return err
	}
	start, end, err := parseMeasureSpec(spec)
	if err != nil {
		return err
	}

	ms := plan.NewMeasurementSet(a.unit)
	g := ms.Add(start, end, a.Scale)

	out := a.out()
	fmt.Fprintf(out, "Start: (%g, %g, %g)\n", start.X, start.Y, start.Z)
	fmt.Fprintf(out, "End:   (%g, %g, %g)\n", end.X, end.Y, end.Z)
	fmt.Fprintf(out, "Distance: %s (%.4f m)\n", g.Label, g.Distance)
	return nil
}

func parseMeasureSpec(spec string) (r3.Vec, r3.Vec, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 2 {
		return r3.Vec{}, r3.Vec{}, fmt.Errorf("measure: want x1,y1,z1:x2,y2,z2, got %q", spec)
	}
	start, err := parseVec(parts[0])
	if err != nil {
		return r3.Vec{}, r3.Vec{}, fmt.Errorf("measure: start: %w", err)
	}
	end, err := parseVec(parts[1])
	if err != nil {
		return r3.Vec{}, r3.Vec{}, fmt.Errorf("measure: end: %w", err)
	}
	return start, end, nil
}

func parseVec(s string) (r3.Vec, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return r3.Vec{}, fmt.Errorf("want 3 coordinates, got %d in %q", len(fields), s)
	}
	var v [3]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("coordinate %d: %w", i, err)
		}
		v[i] = n
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

// RunWatch renders every snapshot in DataDir, then re-renders snapshots as
// they are written until interrupted.
func (a *App) RunWatch() error {
	if err := a.prepare(); err != nil {
		return err
	}

	if files, err := a.roomFiles(); err == nil {
		for _, file := range files {
			if _, err := a.renderFile(file); err != nil {
				log.Printf("Warning: skipping %s: %v", file, err)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(a.out(), "Watching %s for *%s changes (Ctrl+C to stop)\n", a.DataDir, roomFileSuffix)
	return a.watch(ctx, nil)
}

// watch re-renders snapshot files on create or write and forgets rooms whose
// file is removed. ready, if non-nil, is closed once the watcher is active.
func (a *App) watch(ctx context.Context, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(a.DataDir); err != nil {
		return fmt.Errorf("watching %s: %w", a.DataDir, err)
	}
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isRoomFile(event.Name) {
				continue
			}
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create ||
				event.Op&fsnotify.Write == fsnotify.Write:
				paths, err := a.renderFile(event.Name)
				if err != nil {
					log.Printf("Warning: re-rendering %s: %v", event.Name, err)
					continue
				}
				log.Printf("Re-rendered %s -> %s", roomName(event.Name), strings.Join(paths, ", "))
			case event.Op&fsnotify.Remove == fsnotify.Remove ||
				event.Op&fsnotify.Rename == fsnotify.Rename:
				if a.StateTracker.RemoveRoom(roomName(event.Name)) {
					log.Printf("Room %s removed", roomName(event.Name))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Warning: watcher error: %v", err)
		}
	}
}

// RunService runs the MQTT and/or HTTP service until interrupted
func (a *App) RunService() error {
	fmt.Fprintln(a.out(), "Starting roomplan service...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.startService(ctx); err != nil {
		return err
	}
	a.printServiceInfo()

	<-ctx.Done()

	fmt.Fprintln(a.out(), "\nShutting down service...")
	a.shutdown()
	fmt.Fprintln(a.out(), "Service stopped")
	return nil
}

// startService wires storage, MQTT, API sources and HTTP. It returns once
// everything is running; background work stops when ctx is done.
func (a *App) startService(ctx context.Context) error {
	if err := a.prepare(); err != nil {
		return err
	}

	storageCfg := a.Config.Storage
	if storageCfg.Path == "" {
		storageCfg.Path = filepath.Join(a.DataDir, "models")
		if storageCfg.Driver == "sqlite" {
			storageCfg.Path = filepath.Join(a.DataDir, "models", "rooms.db")
		}
	}
	st, err := store.Open(storageCfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	a.Store = st

	if a.MqttMode {
		mqttClient, err := plan.InitMQTT(a.Config, a.handleSnapshot)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured (set mqtt.broker or MQTT_BROKER)")
		}
		a.MQTTClient = mqttClient
		a.Publisher = plan.NewPublisher(mqttClient.GetClient())
		a.Publisher.SetPrefix(a.Config.MQTT.PublishPrefix)
		fmt.Fprintln(a.out(), "MQTT floor plan publisher initialized")
	}

	restored := a.restoreStoredRooms(ctx)
	loaded := a.loadInitialRooms()
	if restored+loaded > 0 {
		fmt.Fprintf(a.out(), "Loaded %d stored and %d on-disk room snapshots\n", restored, loaded)
	}

	go a.pollSources(ctx)

	if a.HttpMode {
		port := a.HttpPort
		if port == defaultHTTPPort && a.Config.HTTP.Port != 0 {
			port = a.Config.HTTP.Port
		}
		a.HttpPort = port
		a.server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", port),
			Handler:           newHTTPServer(a.StateTracker, a.Store, a.Publisher),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func(srv *http.Server) {
			log.Printf("[HTTP] Starting server on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
			}
		}(a.server)
	}
	return nil
}

func (a *App) printServiceInfo() {
	out := a.out()
	fmt.Fprintln(out, "\nService Running")
	fmt.Fprintln(out, "===============")

	if a.MqttMode {
		fmt.Fprintln(out, "\nMQTT:")
		fmt.Fprintln(out, "  Subscribed topics:")
		for _, src := range a.Config.Sources {
			if src.Topic != "" {
				fmt.Fprintf(out, "    - %s (%s)\n", src.Topic, src.ID)
			}
		}
		prefix := a.Config.MQTT.PublishPrefix
		if prefix == "" {
			prefix = "roomplan"
		}
		fmt.Fprintf(out, "  Publishing to: %s/{room}/floorplan\n", prefix)
		fmt.Fprintf(out, "  Room index: %s/rooms\n", prefix)
	}

	if a.HttpMode {
		fmt.Fprintf(out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(out, "  GET    /health                              - Health check")
		fmt.Fprintln(out, "  GET    /rooms                               - Known rooms")
		fmt.Fprintln(out, "  GET    /rooms/{name}/floorplan.{svg,png,geojson,json}")
		fmt.Fprintln(out, "  POST   /rooms/{name}                        - Upload a snapshot")
		fmt.Fprintln(out, "  GET    /rooms/{name}/measurements           - List measurements")
		fmt.Fprintln(out, "  POST   /rooms/{name}/measurements           - Add a measurement or tap")
		fmt.Fprintln(out, "  DELETE /rooms/{name}/measurements[/last|/{id}]")
		fmt.Fprintln(out, "  PUT    /rooms/{name}/measurements/unit      - Change the unit")
	}

	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}

func (a *App) shutdown() {
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Printf("Warning: closing storage: %v", err)
		}
	}
}

// handleSnapshot receives snapshots from MQTT sources and API polling.
func (a *App) handleSnapshot(sourceID string, room *plan.Room, err error) {
	if err != nil {
		log.Printf("Error receiving room snapshot for %s: %v", sourceID, err)
		return
	}
	if !plan.HasDrawableSurfaces(room) {
		log.Printf("Warning: %s: snapshot has no surfaces or objects, keeping previous plan", sourceID)
		return
	}

	if a.Store != nil {
		rec, err := a.Store.Save(context.Background(), sourceID, room)
		if err != nil {
			log.Printf("Warning: storing snapshot for %s: %v", sourceID, err)
		} else {
			log.Printf("Stored snapshot for %s as %s", sourceID, rec.FileName)
		}
	}
	a.applyRoom(sourceID, room)
}

// applyRoom projects a snapshot into the state tracker and publishes it.
func (a *App) applyRoom(name string, room *plan.Room) *plan.FloorPlan {
	fp := a.StateTracker.UpdateRoom(name, room)
	log.Printf("%s: projected %d primitives", name, len(fp.Primitives))
	publishPlan(a.Publisher, name, fp)
	return fp
}

// restoreStoredRooms loads the newest stored snapshot of every room.
func (a *App) restoreStoredRooms(ctx context.Context) int {
	if a.Store == nil {
		return 0
	}
	records, err := a.Store.List(ctx)
	if err != nil {
		log.Printf("Warning: listing stored rooms: %v", err)
		return 0
	}

	latest := make(map[string]string)
	var order []string
	for _, rec := range records {
		if _, seen := latest[rec.Name]; !seen {
			order = append(order, rec.Name)
		}
		latest[rec.Name] = rec.FileName
	}

	n := 0
	for _, name := range order {
		rec, err := a.Store.Get(ctx, latest[name])
		if err != nil {
			log.Printf("Warning: loading stored room %s: %v", name, err)
			continue
		}
		room, err := rec.Room()
		if err != nil {
			log.Printf("Warning: decoding stored room %s: %v", name, err)
			continue
		}
		a.applyRoom(name, room)
		n++
	}
	return n
}

// loadInitialRooms loads *.room.json snapshots from DataDir.
func (a *App) loadInitialRooms() int {
	files, err := a.roomFiles()
	if err != nil {
		return 0
	}
	n := 0
	for _, file := range files {
		room, err := plan.DecodeRoomFile(file)
		if err != nil {
			log.Printf("Warning: Failed to load %s: %v", file, err)
			continue
		}
		a.applyRoom(roomName(file), room)
		n++
	}
	return n
}

// pollSources fetches every source with an apiUrl now and then on each
// sourcePollInterval tick until ctx is done.
func (a *App) pollSources(ctx context.Context) {
	var sources []plan.SourceConfig
	for _, src := range a.Config.Sources {
		if src.ApiURL != nil && *src.ApiURL != "" {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return
	}

	fetchAll := func() {
		for _, src := range sources {
			room, err := plan.FetchRoomFromAPI(ctx, *src.ApiURL)
			if ctx.Err() != nil {
				return
			}
			a.handleSnapshot(src.ID, room, err)
		}
	}

	fetchAll()
	ticker := time.NewTicker(sourcePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetchAll()
		}
	}
}

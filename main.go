package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the parsed command line.
type AppOptions struct {
	ConfigFile   string
	DataDir      string
	ListOnly     bool
	ProjectOnly  bool
	RenderOnly   bool
	OutputDir    string
	RenderFormat string
	Watch        bool
	Measure      string
	Unit         string
	Scale        float64
	MqttMode     bool
	HttpMode     bool
	HttpPort     int
}

// Runner is the set of modes run can dispatch to.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunList() error
	RunProject() error
	RunRender() error
	RunMeasure(spec string) error
	RunWatch() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("roomplan", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.DataDir, "data-dir", ".", "Directory containing *.room.json snapshots")
	fs.BoolVar(&opts.ListOnly, "list", false, "Summarize room snapshots and exit")
	fs.BoolVar(&opts.ProjectOnly, "project", false, "Print the projected draw primitives and exit")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render floor plans and exit")
	fs.StringVar(&opts.OutputDir, "output", ".", "Output directory for --render and --watch")
	fs.StringVar(&opts.RenderFormat, "format", "svg", "Render format: svg, png, geojson, or all")
	fs.BoolVar(&opts.Watch, "watch", false, "Re-render snapshots in --data-dir when they change")
	fs.StringVar(&opts.Measure, "measure", "", "Measure between two model points: x1,y1,z1:x2,y2,z2")
	fs.StringVar(&opts.Unit, "unit", "", "Measurement unit: meters, feet, or inches (default from config)")
	fs.Float64Var(&opts.Scale, "scale", 1.0, "Model-to-world scale for --measure")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode (subscribe to room sources, publish plans)")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for plans and measurements")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port (default 8080)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "roomplan version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.ListOnly:
		return app.RunList()
	case opts.ProjectOnly:
		return app.RunProject()
	case opts.RenderOnly:
		return app.RunRender()
	case opts.Measure != "":
		return app.RunMeasure(opts.Measure)
	case opts.Watch:
		return app.RunWatch()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "roomplan service starting...")
	fmt.Fprintln(out, "Use --list to summarize room snapshots")
	fmt.Fprintln(out, "Use --project to print draw primitives")
	fmt.Fprintln(out, "Use --render to write floor plans (--format svg|png|geojson|all)")
	fmt.Fprintln(out, "Use --watch to re-render snapshots as they change")
	fmt.Fprintln(out, "Use --measure=x1,y1,z1:x2,y2,z2 to measure a distance")
	fmt.Fprintln(out, "Use --mqtt to run MQTT service mode")
	fmt.Fprintln(out, "Use --http to run HTTP server mode")
	fmt.Fprintln(out, "Use --mqtt --http to run both MQTT and HTTP together")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - MQTT settings, sources, style, units and storage")
	return nil
}

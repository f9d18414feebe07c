package main

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
)

type mockApp struct {
	opts   AppOptions
	called map[string]bool
	sArg   string
	err    error
}

func newMockApp() *mockApp {
	return &mockApp{
		called: make(map[string]bool),
	}
}

func (m *mockApp) ApplyOptions(opts AppOptions) { m.opts = opts }
func (m *mockApp) RunList() error               { m.called["RunList"] = true; return m.err }
func (m *mockApp) RunProject() error            { m.called["RunProject"] = true; return m.err }
func (m *mockApp) RunRender() error             { m.called["RunRender"] = true; return m.err }
func (m *mockApp) RunMeasure(s string) error {
	m.called["RunMeasure"] = true
	m.sArg = s
	return m.err
}
func (m *mockApp) RunWatch() error   { m.called["RunWatch"] = true; return m.err }
func (m *mockApp) RunService() error { m.called["RunService"] = true; return m.err }

func TestRun_Flags(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCalled string
		verifyOpts     func(*testing.T, AppOptions)
	}{
		{
			name:           "List",
			args:           []string{"--list", "--data-dir", "/tmp/data"},
			expectedCalled: "RunList",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.DataDir != "/tmp/data" {
					t.Errorf("expected DataDir /tmp/data, got %s", opts.DataDir)
				}
				if !opts.ListOnly {
					t.Error("expected ListOnly true")
				}
			},
		},
		{
			name:           "Project",
			args:           []string{"--project", "--config", "other.yaml"},
			expectedCalled: "RunProject",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.ConfigFile != "other.yaml" {
					t.Errorf("expected ConfigFile other.yaml, got %s", opts.ConfigFile)
				}
			},
		},
		{
			name:           "Render",
			args:           []string{"--render", "--output", "out", "--format", "all"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.OutputDir != "out" {
					t.Errorf("expected OutputDir out, got %s", opts.OutputDir)
				}
				if opts.RenderFormat != "all" {
					t.Errorf("expected RenderFormat all, got %s", opts.RenderFormat)
				}
				if !opts.RenderOnly {
					t.Error("expected RenderOnly true")
				}
			},
		},
		{
			name:           "Measure",
			args:           []string{"--measure", "0,0,0:1,0,0", "--unit", "feet", "--scale", "0.5"},
			expectedCalled: "RunMeasure",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.Measure != "0,0,0:1,0,0" {
					t.Errorf("expected Measure spec, got %s", opts.Measure)
				}
				if opts.Unit != "feet" {
					t.Errorf("expected Unit feet, got %s", opts.Unit)
				}
				if opts.Scale != 0.5 {
					t.Errorf("expected Scale 0.5, got %f", opts.Scale)
				}
			},
		},
		{
			name:           "Watch",
			args:           []string{"--watch", "--format", "png"},
			expectedCalled: "RunWatch",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.RenderFormat != "png" {
					t.Errorf("expected RenderFormat png, got %s", opts.RenderFormat)
				}
			},
		},
		{
			name:           "MqttMode",
			args:           []string{"--mqtt", "--http-port", "9090"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.MqttMode {
					t.Error("expected MqttMode true")
				}
				if opts.HttpPort != 9090 {
					t.Errorf("expected HttpPort 9090, got %d", opts.HttpPort)
				}
			},
		},
		{
			name:           "HttpMode",
			args:           []string{"--http"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.HttpMode || opts.MqttMode {
					t.Errorf("expected only HttpMode, got %+v", opts)
				}
				if opts.HttpPort != 8080 {
					t.Errorf("expected default HttpPort 8080, got %d", opts.HttpPort)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMockApp()
			var out bytes.Buffer
			err := run(tt.args, &out, app)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}

			if !app.called[tt.expectedCalled] {
				t.Errorf("expected %s to be called", tt.expectedCalled)
			}
			if len(app.called) != 1 {
				t.Errorf("expected exactly one mode, got %v", app.called)
			}

			if tt.verifyOpts != nil {
				tt.verifyOpts(t, app.opts)
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{"--help"}, &out, app)
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("expected flag.ErrHelp from --help, got %v", err)
	}
	if !strings.Contains(out.String(), "Usage of roomplan") {
		t.Errorf("expected usage info in output, got: %s", out.String())
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	if err := run([]string{"--calibrate"}, &out, app); err == nil {
		t.Error("expected error for unknown flag")
	}
	if len(app.called) != 0 {
		t.Errorf("no mode should run, got %v", app.called)
	}
}

func TestRun_PropagatesModeError(t *testing.T) {
	app := newMockApp()
	app.err = errors.New("no snapshots")
	var out bytes.Buffer
	if err := run([]string{"--list"}, &out, app); !errors.Is(err, app.err) {
		t.Errorf("expected mode error, got %v", err)
	}
}

func TestRun_Default(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{}, &out, app)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	expectedPrefix := "roomplan version: " + Version
	if !strings.Contains(out.String(), expectedPrefix) {
		t.Errorf("expected output to contain version, got: %s", out.String())
	}

	if !strings.Contains(out.String(), "roomplan service starting...") {
		t.Errorf("expected output to contain service starting message, got: %s", out.String())
	}
	if len(app.called) != 0 {
		t.Errorf("default run should not start a mode, got %v", app.called)
	}
}

func TestMain_Execute(t *testing.T) {
	// Smoke test to ensure version is set
	if Version == "" {
		t.Error("expected Version to be set")
	}
}

// Package config handles SignFlow configuration loading.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"SignFlow/internal/capture"
	"SignFlow/internal/coords"
	"SignFlow/internal/export"
	"SignFlow/internal/render"
	"SignFlow/internal/state"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Capture CaptureConfig `yaml:"capture" toml:"capture"`
	Boxes   BoxesConfig   `yaml:"boxes" toml:"boxes"`
	Render  RenderConfig  `yaml:"render" toml:"render"`
	Ink     InkConfig     `yaml:"ink" toml:"ink"`
	Upload  UploadConfig  `yaml:"upload" toml:"upload"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host                string `yaml:"host" toml:"host"`
	Port                int    `yaml:"port" toml:"port"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds" toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds" toml:"write_timeout_seconds"`
	Advertise           bool   `yaml:"advertise" toml:"advertise"` // announce over mDNS
	Instance            string `yaml:"instance" toml:"instance"`
}

// StorageConfig holds where session artifacts are written.
type StorageConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// CaptureConfig holds signing pad sampling settings.
type CaptureConfig struct {
	MinDistanceSq    float64 `yaml:"min_distance_sq" toml:"min_distance_sq"`
	SampleIntervalMS int     `yaml:"sample_interval_ms" toml:"sample_interval_ms"` // negative disables throttling
	PadWidth         float64 `yaml:"pad_width" toml:"pad_width"`
	PadHeight        float64 `yaml:"pad_height" toml:"pad_height"`
}

// BoxesConfig holds the minimum size of a drawn box in pixels.
type BoxesConfig struct {
	MinWidthPx  float64 `yaml:"min_width_px" toml:"min_width_px"`
	MinHeightPx float64 `yaml:"min_height_px" toml:"min_height_px"`
}

// RenderConfig holds stroke smoothing and page preview settings.
type RenderConfig struct {
	Smoothing string  `yaml:"smoothing" toml:"smoothing"`
	Scale     float64 `yaml:"scale" toml:"scale"`
	Pdftoppm  string  `yaml:"pdftoppm" toml:"pdftoppm"`
}

// InkConfig holds the pen used on export.
type InkConfig struct {
	Color        string  `yaml:"color" toml:"color"`
	Width        float64 `yaml:"width" toml:"width"`
	MinDotRadius float64 `yaml:"min_dot_radius" toml:"min_dot_radius"`
}

// UploadConfig holds upload limits.
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes" toml:"max_bytes"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "127.0.0.1",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 60,
			Instance:            "SignFlow",
		},
		Storage: StorageConfig{Dir: "uploads"},
		Capture: CaptureConfig{
			MinDistanceSq:    capture.DefaultMinDistanceSq,
			SampleIntervalMS: int(capture.DefaultInterval / time.Millisecond),
			PadWidth:         600,
			PadHeight:        200,
		},
		Boxes:  BoxesConfig{MinWidthPx: 5, MinHeightPx: 5},
		Render: RenderConfig{Smoothing: render.CatmullRom.String(), Scale: 1.5, Pdftoppm: "pdftoppm"},
		Ink:    InkConfig{Color: "#1a237e", Width: 2, MinDotRadius: export.DefaultMinDotRadius},
		Upload: UploadConfig{MaxBytes: 10 << 20},
	}
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
// Settings missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.backfill()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads config from path, or returns default if not found.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Save writes the configuration in the format matching the extension.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isTOML(path) {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// backfill replaces zero values left by a partial file with defaults.
func (c *Config) backfill() {
	d := Default()
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = d.Server.ReadTimeoutSeconds
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = d.Server.WriteTimeoutSeconds
	}
	if c.Server.Instance == "" {
		c.Server.Instance = d.Server.Instance
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = d.Storage.Dir
	}
	if c.Capture.MinDistanceSq == 0 {
		c.Capture.MinDistanceSq = d.Capture.MinDistanceSq
	}
	if c.Capture.SampleIntervalMS == 0 {
		c.Capture.SampleIntervalMS = d.Capture.SampleIntervalMS
	}
	if c.Capture.PadWidth == 0 {
		c.Capture.PadWidth = d.Capture.PadWidth
	}
	if c.Capture.PadHeight == 0 {
		c.Capture.PadHeight = d.Capture.PadHeight
	}
	if c.Boxes.MinWidthPx == 0 {
		c.Boxes.MinWidthPx = d.Boxes.MinWidthPx
	}
	if c.Boxes.MinHeightPx == 0 {
		c.Boxes.MinHeightPx = d.Boxes.MinHeightPx
	}
	if c.Render.Smoothing == "" {
		c.Render.Smoothing = d.Render.Smoothing
	}
	if c.Render.Scale == 0 {
		c.Render.Scale = d.Render.Scale
	}
	if c.Render.Pdftoppm == "" {
		c.Render.Pdftoppm = d.Render.Pdftoppm
	}
	if c.Ink.Color == "" {
		c.Ink.Color = d.Ink.Color
	}
	if c.Ink.Width == 0 {
		c.Ink.Width = d.Ink.Width
	}
	if c.Ink.MinDotRadius == 0 {
		c.Ink.MinDotRadius = d.Ink.MinDotRadius
	}
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = d.Upload.MaxBytes
	}
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Capture.MinDistanceSq < 0 {
		errs = append(errs, fmt.Errorf("capture.min_distance_sq must not be negative"))
	}
	if c.Capture.PadWidth <= 0 || c.Capture.PadHeight <= 0 {
		errs = append(errs, fmt.Errorf("capture pad size must be positive"))
	}
	if c.Boxes.MinWidthPx < 0 || c.Boxes.MinHeightPx < 0 {
		errs = append(errs, fmt.Errorf("boxes minimum size must not be negative"))
	}
	if _, err := render.ParsePolicy(c.Render.Smoothing); err != nil {
		errs = append(errs, fmt.Errorf("render.smoothing: %w", err))
	}
	if c.Render.Scale <= 0 || c.Render.Scale > 8 {
		errs = append(errs, fmt.Errorf("render.scale %v out of range (0,8]", c.Render.Scale))
	}
	if _, err := ParseColor(c.Ink.Color); err != nil {
		errs = append(errs, fmt.Errorf("ink.color: %w", err))
	}
	if c.Ink.Width <= 0 {
		errs = append(errs, fmt.Errorf("ink.width must be positive"))
	}
	if c.Upload.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("upload.max_bytes must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string { return c.Server.Addr() }

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SessionSettings converts the capture, box and smoothing sections into
// per-session settings.
func (c *Config) SessionSettings() state.Settings {
	policy, err := render.ParsePolicy(c.Render.Smoothing)
	if err != nil {
		policy = render.CatmullRom
	}
	return state.Settings{
		Capture: capture.Options{
			MinDistanceSq: c.Capture.MinDistanceSq,
			Interval:      time.Duration(c.Capture.SampleIntervalMS) * time.Millisecond,
		},
		Renderer:     render.Renderer{Policy: policy},
		PadSize:      coords.Size{W: c.Capture.PadWidth, H: c.Capture.PadHeight},
		MinBoxWidth:  c.Boxes.MinWidthPx,
		MinBoxHeight: c.Boxes.MinHeightPx,
	}
}

// Pen returns the export ink.
func (c *Config) Pen() export.Ink {
	col, err := ParseColor(c.Ink.Color)
	if err != nil {
		col = export.DefaultInk.Color
	}
	return export.Ink{Color: col, Width: c.Ink.Width}
}

// ParseColor parses "#rrggbb" or "#rgb".
func ParseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

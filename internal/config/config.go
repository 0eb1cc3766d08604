// Package config loads run settings from defaults, an optional YAML file,
// ACOUSTIC1D_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"acoustic1d/internal/device"
	"acoustic1d/internal/grid"
	"acoustic1d/internal/kernels"
	"acoustic1d/internal/solver"
)

// EnvPrefix is prepended to every environment key, e.g. ACOUSTIC1D_GRID_MX.
const EnvPrefix = "ACOUSTIC1D"

// ErrInvalid wraps every settings validation failure.
var ErrInvalid = errors.New("config: invalid settings")

type GridSettings struct {
	Meqn   int     `mapstructure:"meqn" yaml:"meqn"`
	Mx     int     `mapstructure:"mx" yaml:"mx"`
	Mbc    int     `mapstructure:"mbc" yaml:"mbc"`
	XLower float64 `mapstructure:"xlower" yaml:"xlower"`
	XUpper float64 `mapstructure:"xupper" yaml:"xupper"`
}

type PhysicsSettings struct {
	Rho      float64 `mapstructure:"rho" yaml:"rho"`
	Bulk     float64 `mapstructure:"bulk" yaml:"bulk"`
	Boundary string  `mapstructure:"boundary" yaml:"boundary"`
}

type PulseSettings struct {
	// Center is an interior cell index; negative means the middle cell.
	Center int     `mapstructure:"center" yaml:"center"`
	Width  float64 `mapstructure:"width" yaml:"width"`
}

type TimeSettings struct {
	Start   float64 `mapstructure:"start" yaml:"start"`
	Final   float64 `mapstructure:"final" yaml:"final"`
	Outputs int     `mapstructure:"outputs" yaml:"outputs"`
	// DtInitial <= 0 means half a cell width.
	DtInitial      float64 `mapstructure:"dt_initial" yaml:"dt_initial"`
	DtMin          float64 `mapstructure:"dt_min" yaml:"dt_min"`
	DtMax          float64 `mapstructure:"dt_max" yaml:"dt_max"`
	DesiredCourant float64 `mapstructure:"desired_courant" yaml:"desired_courant"`
	MaxCourant     float64 `mapstructure:"max_courant" yaml:"max_courant"`
	MaxSteps       int     `mapstructure:"max_steps" yaml:"max_steps"`
}

type RunSettings struct {
	Device     string `mapstructure:"device" yaml:"device"`
	GroupSize  int    `mapstructure:"group_size" yaml:"group_size"`
	Workers    int    `mapstructure:"workers" yaml:"workers"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
	CPUProfile string `mapstructure:"cpuprofile" yaml:"cpuprofile"`
}

type OutputSettings struct {
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Claw  bool   `mapstructure:"claw" yaml:"claw"`
	Plots bool   `mapstructure:"plots" yaml:"plots"`
	Serve string `mapstructure:"serve" yaml:"serve"`
	// StreamHalf sends binary16 frames on the stream instead of JSON.
	StreamHalf bool   `mapstructure:"stream_half" yaml:"stream_half"`
	Summary    string `mapstructure:"summary" yaml:"summary"`
}

// Settings is everything a run needs.
type Settings struct {
	Grid    GridSettings    `mapstructure:"grid" yaml:"grid"`
	Physics PhysicsSettings `mapstructure:"physics" yaml:"physics"`
	Pulse   PulseSettings   `mapstructure:"pulse" yaml:"pulse"`
	Time    TimeSettings    `mapstructure:"time" yaml:"time"`
	Run     RunSettings     `mapstructure:"run" yaml:"run"`
	Output  OutputSettings  `mapstructure:"output" yaml:"output"`
}

// SetDefaults installs the reference run.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("grid.meqn", 2)
	v.SetDefault("grid.mx", 100)
	v.SetDefault("grid.mbc", 2)
	v.SetDefault("grid.xlower", -1.0)
	v.SetDefault("grid.xupper", 1.0)

	v.SetDefault("physics.rho", 1.0)
	v.SetDefault("physics.bulk", 4.0)
	v.SetDefault("physics.boundary", kernels.Wall.String())

	v.SetDefault("pulse.center", -1)
	v.SetDefault("pulse.width", 0.0)

	v.SetDefault("time.start", 0.0)
	v.SetDefault("time.final", 1.0)
	v.SetDefault("time.outputs", 16)
	v.SetDefault("time.dt_initial", 0.0)
	v.SetDefault("time.dt_min", 0.0)
	v.SetDefault("time.dt_max", 1.0)
	v.SetDefault("time.desired_courant", 1.0)
	v.SetDefault("time.max_courant", 1.0)
	v.SetDefault("time.max_steps", 1000)

	v.SetDefault("run.device", string(device.CPU))
	v.SetDefault("run.group_size", 0)
	v.SetDefault("run.workers", 0)
	v.SetDefault("run.log_level", "info")
	v.SetDefault("run.cpuprofile", "")

	v.SetDefault("output.dir", "_output")
	v.SetDefault("output.claw", true)
	v.SetDefault("output.plots", false)
	v.SetDefault("output.serve", "")
	v.SetDefault("output.stream_half", false)
	v.SetDefault("output.summary", "summary.yaml")
}

// flagKeys maps command-line flag names to settings keys.
var flagKeys = map[string]string{
	"device":      "run.device",
	"group-size":  "run.group_size",
	"workers":     "run.workers",
	"log-level":   "run.log_level",
	"cpuprofile":  "run.cpuprofile",
	"mx":          "grid.mx",
	"boundary":    "physics.boundary",
	"t-final":     "time.final",
	"outputs":     "time.outputs",
	"courant":     "time.desired_courant",
	"max-steps":   "time.max_steps",
	"out":         "output.dir",
	"plots":       "output.plots",
	"serve":       "output.serve",
	"stream-fp16": "output.stream_half",
}

// BindFlags binds every known flag present in fs. Flags left at their
// default do not override the file or environment.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional YAML file at path and unmarshals the merged
// settings.
func Load(v *viper.Viper, path string) (Settings, error) {
	var s Settings
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return s, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decoding settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks the settings that do not map onto the solver problem and
// then the problem itself.
func (s Settings) Validate() error {
	if _, err := device.ParseKind(s.Run.Device); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := logrus.ParseLevel(s.Run.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if s.Run.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalid, s.Run.Workers)
	}
	if _, err := s.Problem(); err != nil {
		return err
	}
	return nil
}

// DeviceKind returns the parsed device selection.
func (s Settings) DeviceKind() device.Kind {
	k, _ := device.ParseKind(s.Run.Device)
	return k
}

// Problem converts the settings to a validated solver problem.
func (s Settings) Problem() (solver.Problem, error) {
	b, err := kernels.ParseBoundary(s.Physics.Boundary)
	if err != nil {
		return solver.Problem{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	g := grid.Grid{
		Meqn:   s.Grid.Meqn,
		Mx:     s.Grid.Mx,
		Mbc:    s.Grid.Mbc,
		XLower: s.Grid.XLower,
		XUpper: s.Grid.XUpper,
	}
	p := solver.Problem{
		Grid:           g,
		Rho:            s.Physics.Rho,
		Bulk:           s.Physics.Bulk,
		Boundary:       b,
		PulseCenter:    s.Pulse.Center,
		PulseWidth:     s.Pulse.Width,
		TStart:         s.Time.Start,
		TFinal:         s.Time.Final,
		Outputs:        s.Time.Outputs,
		DtInitial:      s.Time.DtInitial,
		DtMin:          s.Time.DtMin,
		DtMax:          s.Time.DtMax,
		DesiredCourant: s.Time.DesiredCourant,
		MaxCourant:     s.Time.MaxCourant,
		MaxSteps:       s.Time.MaxSteps,
		GroupSize:      s.Run.GroupSize,
	}
	if p.PulseCenter < 0 {
		p.PulseCenter = g.CenterCell()
	}
	if p.DtInitial <= 0 && g.Mx > 0 {
		p.DtInitial = g.Dx() / 2
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return p, nil
}

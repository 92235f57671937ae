package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veghal/heatgrid/internal/field"
)

const (
	// Alpha is the diffusion coefficient of the simulated material.
	Alpha = 1.0

	// Gamma is the diffusion number alpha*dt/dx^2. The explicit scheme is
	// stable only for gamma < 0.25; dt is derived from this value.
	Gamma = 0.2

	// StabilityLimit is the hard upper bound on the diffusion number.
	StabilityLimit = 0.25

	DefaultNout = 1000
)

// Base holds the three user-supplied integers plus run options, loadable
// from a yaml file.
type Base struct {
	Nx        int    `yaml:"nx"`
	Ny        int    `yaml:"ny"`
	Ni        int    `yaml:"ni"`
	Ranks     int    `yaml:"ranks"`
	Nout      int    `yaml:"nout"`
	Transport string `yaml:"transport"`
	Out       string `yaml:"out"`
}

func DefaultBase() *Base {
	return &Base{
		Nx:        100,
		Ny:        100,
		Ni:        10000,
		Ranks:     1,
		Nout:      DefaultNout,
		Transport: "local",
		Out:       "field.dat",
	}
}

func LoadBase(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b := DefaultBase()
	if err := yaml.Unmarshal(data, b); err != nil {
		return nil, err
	}
	return b, nil
}

func SaveBase(path string, b *Base) error {
	data, err := yaml.Marshal(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Config is the immutable per-unit simulation record. It is derived once at
// startup and passed explicitly to every component; there is no ambient
// global configuration.
type Config struct {
	Dx     float64 // global column spacing, 1/globalWidth
	Dt     float64 // time step, derived from Gamma
	Nx     int     // local slab width (real columns)
	Ny     int     // slab height
	Ni     int     // iteration count
	Rank   int     // this unit's identity in the chain
	Nranks int     // cooperating unit count
	Nout   int     // energy report cadence, iterations
}

// Derive computes the simulation constants for one unit of the chain.
// The local width is per-unit: the global grid is nx*nranks columns wide.
func Derive(nx, ny, ni, rank, nranks int) (*Config, error) {
	cfg := &Config{
		Nx:     nx,
		Ny:     ny,
		Ni:     ni,
		Rank:   rank,
		Nranks: nranks,
		Nout:   DefaultNout,
	}
	if nx <= 0 || nranks <= 0 {
		return nil, fmt.Errorf("config: dimensions must be positive, got nx=%d nranks=%d", nx, nranks)
	}
	cfg.Dx = 1.0 / float64(cfg.GlobalWidth())
	cfg.Dt = Gamma * cfg.Dx * cfg.Dx / Alpha
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) GlobalWidth() int  { return c.Nx * c.Nranks }
func (c *Config) GlobalHeight() int { return c.Ny }

// DiffusionNumber returns alpha*dt/dx^2 for the derived constants.
func (c *Config) DiffusionNumber() float64 {
	return Alpha * c.Dt / (c.Dx * c.Dx)
}

// TotalTime is the simulated time span ni*dt recorded in the artifact header.
func (c *Config) TotalTime() float64 { return float64(c.Ni) * c.Dt }

// Partition describes the column-block of the global grid this unit owns.
func (c *Config) Partition() field.Partition {
	return field.Partition{Rank: c.Rank, Nranks: c.Nranks, Nx: c.Nx}
}

func (c *Config) HasPrev() bool { return c.Partition().HasPrev() }
func (c *Config) HasNext() bool { return c.Partition().HasNext() }

func (c *Config) Validate() error {
	if c.Nx <= 0 || c.Ny <= 0 {
		return fmt.Errorf("config: dimensions must be positive, got %dx%d", c.Nx, c.Ny)
	}
	if c.Nx < 2 {
		return fmt.Errorf("config: slab width must be at least 2, got %d", c.Nx)
	}
	if c.Ny < 3 {
		return fmt.Errorf("config: slab height must be at least 3, got %d", c.Ny)
	}
	if c.Ni <= 0 {
		return fmt.Errorf("config: iteration count must be positive, got %d", c.Ni)
	}
	if c.Nranks <= 0 {
		return fmt.Errorf("config: unit count must be positive, got %d", c.Nranks)
	}
	if c.Rank < 0 || c.Rank >= c.Nranks {
		return fmt.Errorf("config: rank %d outside [0,%d)", c.Rank, c.Nranks)
	}
	if g := c.DiffusionNumber(); g >= StabilityLimit {
		return fmt.Errorf("config: diffusion number %.4f violates stability bound %.2f", g, StabilityLimit)
	}
	return nil
}

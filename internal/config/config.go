// Package config loads the YAML settings shared by the host and the
// clients. Every field has a default; a file only needs the fields it
// changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"LiveBoard/internal/batch"
	lbnet "LiveBoard/internal/net"
)

// Port is the default hub port, kept from the original TCP host.
const Port = 8888

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Canvas    Canvas    `yaml:"canvas"`
	Room      string    `yaml:"room"`
	User      string    `yaml:"user"`
	Server    Server    `yaml:"server"`
	Scheduler Scheduler `yaml:"scheduler"`
	Transport Transport `yaml:"transport"`
}

type Canvas struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Server struct {
	Addr      string `yaml:"addr"`
	Advertise bool   `yaml:"advertise"`
}

type Scheduler struct {
	StrokeThrottle   time.Duration `yaml:"strokeThrottle"`
	BatchSize        int           `yaml:"batchSize"`
	BatchDelay       time.Duration `yaml:"batchDelay"`
	UrgentSlack      time.Duration `yaml:"urgentSlack"`
	DensifyThreshold float64       `yaml:"densifyThreshold"`
	StaggerDelay     time.Duration `yaml:"staggerDelay"`
}

type Transport struct {
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	PingInterval time.Duration `yaml:"pingInterval"`
	SendBuffer   int           `yaml:"sendBuffer"`
}

func Default() Config {
	sched := batch.DefaultConfig()
	transport := lbnet.DefaultSettings()
	return Config{
		Canvas: Canvas{Width: 1280, Height: 720},
		Server: Server{Addr: fmt.Sprintf(":%d", Port), Advertise: true},
		Scheduler: Scheduler{
			StrokeThrottle:   sched.StrokeThrottle,
			BatchSize:        sched.BatchSize,
			BatchDelay:       sched.BatchDelay,
			UrgentSlack:      sched.UrgentSlack,
			DensifyThreshold: sched.DensifyThreshold,
			StaggerDelay:     sched.StaggerDelay,
		},
		Transport: Transport{
			WriteTimeout: transport.WriteTimeout,
			ReadTimeout:  transport.ReadTimeout,
			PingInterval: transport.PingInterval,
			SendBuffer:   transport.SendBuffer,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return fmt.Errorf("%w: canvas %dx%d", ErrInvalid, c.Canvas.Width, c.Canvas.Height)
	}
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("%w: batchSize %d", ErrInvalid, c.Scheduler.BatchSize)
	}
	if c.Transport.PingInterval <= 0 || c.Transport.ReadTimeout <= c.Transport.PingInterval {
		return fmt.Errorf("%w: readTimeout must exceed a positive pingInterval", ErrInvalid)
	}
	return nil
}

func (c Config) BatchConfig() batch.Config {
	return batch.Config{
		StrokeThrottle:   c.Scheduler.StrokeThrottle,
		BatchSize:        c.Scheduler.BatchSize,
		BatchDelay:       c.Scheduler.BatchDelay,
		UrgentSlack:      c.Scheduler.UrgentSlack,
		DensifyThreshold: c.Scheduler.DensifyThreshold,
		StaggerDelay:     c.Scheduler.StaggerDelay,
	}
}

func (c Config) TransportSettings() lbnet.Settings {
	return lbnet.Settings{
		WriteTimeout: c.Transport.WriteTimeout,
		ReadTimeout:  c.Transport.ReadTimeout,
		PingInterval: c.Transport.PingInterval,
		SendBuffer:   c.Transport.SendBuffer,
	}
}

// Package config loads the startup configuration file (§6) and holds
// the tunable timing defaults the core's workers read at construction.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// SatelliteEntry describes one ring member as given in the config
// file's "satellites" array (§6).
type SatelliteEntry struct {
	ID           uint64    `mapstructure:"id"`
	IPAddress    string    `mapstructure:"ip_address"`
	Connections  [2]uint64 `mapstructure:"connections"` // [left_id, right_id]
	InitialAngle float64   `mapstructure:"initial_angle"`
}

// File is the typed form of the config file §6 describes: altitude,
// ground station endpoint, and the ring of satellites.
type File struct {
	Altitude          float64          `mapstructure:"altitude"`
	GroundStationIP   string           `mapstructure:"ground_station_ip"`
	GroundStationPort int              `mapstructure:"ground_station_port"`
	Satellites        []SatelliteEntry `mapstructure:"satellites"`
}

// Load reads and validates the config file at path. Any failure here
// is fatal at startup per §7; callers are expected to log.Fatal on a
// non-nil error, matching ChristopherRabotin/smd's cmd/*/main.go
// viper-then-log.Fatal idiom.
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}

	if err := f.validate(); err != nil {
		return nil, errors.Wrapf(err, "validating config %s", path)
	}
	return &f, nil
}

func (f *File) validate() error {
	if f.Altitude <= 0 {
		return errors.New("altitude must be positive")
	}
	if f.GroundStationIP == "" {
		return errors.New("ground_station_ip is required")
	}
	if f.GroundStationPort <= 0 {
		return errors.New("ground_station_port must be positive")
	}
	if len(f.Satellites) == 0 {
		return errors.New("satellites must not be empty")
	}
	seen := make(map[uint64]bool, len(f.Satellites))
	for _, s := range f.Satellites {
		if seen[s.ID] {
			return errors.Errorf("duplicate satellite id %d", s.ID)
		}
		seen[s.ID] = true
		if s.IPAddress == "" {
			return errors.Errorf("satellite %d missing ip_address", s.ID)
		}
	}
	return nil
}

// FindSelf returns the config entry matching selfID, or false if this
// node's identity is not present in the ring.
func (f *File) FindSelf(selfID uint64) (SatelliteEntry, bool) {
	for _, s := range f.Satellites {
		if s.ID == selfID {
			return s, true
		}
	}
	return SatelliteEntry{}, false
}

// Order returns satellite identifiers in the ring's insertion order,
// as the OrbitalOracle requires (§4.1).
func (f *File) Order() []uint64 {
	out := make([]uint64, len(f.Satellites))
	for i, s := range f.Satellites {
		out[i] = s.ID
	}
	return out
}

// InitialAngles returns each satellite's configured starting angle.
func (f *File) InitialAngles() map[uint64]float64 {
	out := make(map[uint64]float64, len(f.Satellites))
	for _, s := range f.Satellites {
		out[s.ID] = s.InitialAngle
	}
	return out
}

// Timing holds the tunable defaults §4 and §5 name: the oracle's tick
// period, the AcceptedRequests sweep interval, and the
// ResponseCollector's tick granularity. These are not part of the §6
// config file (the spec treats them as implementation defaults); they
// are broken out here as an overridable struct so a deployment can
// change cadence without touching code.
type Timing struct {
	OrbitalTick       time.Duration
	AcceptedSweep     time.Duration
	CollectorTick     time.Duration
	ListenerIdleCheck time.Duration
}

// DefaultTiming returns the defaults named throughout §4.
func DefaultTiming() Timing {
	return Timing{
		OrbitalTick:       5 * time.Second,
		AcceptedSweep:     1 * time.Second,
		CollectorTick:     100 * time.Millisecond,
		ListenerIdleCheck: 1 * time.Second,
	}
}

// Command satsim runs a whole constellation as a batch of local
// satnode subprocesses, adapted from ryx-cluster's exec.Command-per-
// node / PID-file approach. Because the wire protocol binds LEFT/RIGHT
// on fixed ports (§6), nodes cannot be told apart by port offset the
// way ryx-cluster tells ryx-node instances apart; instead each
// simulated satellite gets its own loopback alias (127.0.0.<n>) and
// the fixed ports are bound per-host rather than per-process.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/satcoord/satring/internal/config"
)

const pidFile = ".satsim.pids"

type simNode struct {
	ID  uint64 `json:"id"`
	PID int    `json:"pid"`
}

func main() {
	command := flag.String("cmd", "start", "Command: start, stop, status")
	count := flag.Int("nodes", 5, "Number of satellites in the ring")
	configOut := flag.String("config-out", "satsim-constellation.yaml", "Path to write the generated constellation config")
	binary := flag.String("node-binary", "./satnode", "Path to the satnode binary")
	diagBasePort := flag.Int("diag-base-port", 8080, "First diagnostic HTTP port; node i gets diagBasePort+i")
	altitude := flag.Float64("altitude", 550000, "Orbital altitude in meters, shared by every satellite")
	flag.Parse()

	switch *command {
	case "start":
		if err := start(*count, *configOut, *binary, *diagBasePort, *altitude); err != nil {
			log.Fatalf("start: %v", err)
		}
	case "stop":
		if err := stop(); err != nil {
			log.Fatalf("stop: %v", err)
		}
	case "status":
		if err := status(); err != nil {
			log.Fatalf("status: %v", err)
		}
	default:
		log.Fatalf("unknown -cmd %q, want start, stop, or status", *command)
	}
}

// buildRing lays the satellites out in a closed ring in configuration
// order, each on its own loopback alias, matching the adjacency
// convention internal/orbital.New assumes (§4.1).
func buildRing(count int, altitude float64) *config.File {
	f := &config.File{
		Altitude:          altitude,
		GroundStationIP:   "127.0.0.1",
		GroundStationPort: 9000,
		Satellites:        make([]config.SatelliteEntry, count),
	}
	for i := 0; i < count; i++ {
		id := uint64(i + 1)
		prev := uint64((i-1+count)%count + 1)
		next := uint64((i+1)%count + 1)
		f.Satellites[i] = config.SatelliteEntry{
			ID:           id,
			IPAddress:    fmt.Sprintf("127.0.0.%d", i+1),
			Connections:  [2]uint64{prev, next},
			InitialAngle: float64(i) / float64(count) * 2 * 3.14159265358979,
		}
	}
	return f
}

func start(count int, configOut, binary string, diagBasePort int, altitude float64) error {
	if _, err := os.Stat(pidFile); err == nil {
		return fmt.Errorf("%s already exists; run -cmd stop first", pidFile)
	}

	ring := buildRing(count, altitude)
	if err := os.WriteFile(configOut, []byte(renderYAML(ring)), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", configOut, err)
	}

	var nodes []simNode
	for i, sat := range ring.Satellites {
		cmd := exec.Command(binary,
			"-config", configOut,
			"-id", fmt.Sprintf("%d", sat.ID),
			"-diag-port", fmt.Sprintf("%d", diagBasePort+i),
		)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("starting satellite %d: %w", sat.ID, err)
		}
		nodes = append(nodes, simNode{ID: sat.ID, PID: cmd.Process.Pid})
		time.Sleep(100 * time.Millisecond)
	}

	f, err := os.Create(pidFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", pidFile, err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(nodes); err != nil {
		return fmt.Errorf("writing %s: %w", pidFile, err)
	}

	fmt.Printf("started %d satellites, config at %s, pid file at %s\n", count, configOut, pidFile)
	return nil
}

func stop() error {
	nodes, err := loadPIDFile()
	if err != nil {
		return err
	}
	var failed []string
	for _, n := range nodes {
		if err := syscall.Kill(n.PID, syscall.SIGTERM); err != nil {
			failed = append(failed, fmt.Sprintf("%d (pid %d): %v", n.ID, n.PID, err))
		}
	}
	os.Remove(pidFile)
	if len(failed) > 0 {
		return fmt.Errorf("failed to signal: %s", strings.Join(failed, ", "))
	}
	fmt.Printf("stopped %d satellites\n", len(nodes))
	return nil
}

func status() error {
	nodes, err := loadPIDFile()
	if err != nil {
		return err
	}
	for _, n := range nodes {
		alive := syscall.Kill(n.PID, 0) == nil
		fmt.Printf("satellite %d: pid %d, running=%v\n", n.ID, n.PID, alive)
	}
	return nil
}

func loadPIDFile() ([]simNode, error) {
	body, err := os.ReadFile(pidFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w (is the simulation running?)", pidFile, err)
	}
	var nodes []simNode
	if err := json.Unmarshal(body, &nodes); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pidFile, err)
	}
	return nodes, nil
}

// renderYAML writes f in the flat form internal/config.Load expects
// (the same shape the test fixtures in internal/config use). A
// full-blown YAML library is overkill for writing back the exact
// struct this process just built.
func renderYAML(f *config.File) string {
	var b strings.Builder
	fmt.Fprintf(&b, "altitude: %v\n", f.Altitude)
	fmt.Fprintf(&b, "ground_station_ip: %q\n", f.GroundStationIP)
	fmt.Fprintf(&b, "ground_station_port: %d\n", f.GroundStationPort)
	b.WriteString("satellites:\n")
	for _, s := range f.Satellites {
		fmt.Fprintf(&b, "  - id: %d\n", s.ID)
		fmt.Fprintf(&b, "    ip_address: %q\n", s.IPAddress)
		fmt.Fprintf(&b, "    connections: [%d, %d]\n", s.Connections[0], s.Connections[1])
		fmt.Fprintf(&b, "    initial_angle: %v\n", s.InitialAngle)
	}
	return b.String()
}

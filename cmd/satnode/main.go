// Command satnode runs one satellite of a ring constellation: it loads
// the constellation config file, constructs a node.Node, and serves
// until terminated, mirroring ryx-node's flag-then-construct-then-Start
// shape.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/satcoord/satring/internal/config"
	"github.com/satcoord/satring/internal/node"
)

func main() {
	configPath := flag.String("config", "", "path to the constellation config file (required)")
	selfID := flag.Uint64("id", 0, "this satellite's hardware id, must match an entry in the config file")
	diagPort := flag.Int("diag-port", 8080, "diagnostic HTTP port, 0 disables it")
	devLog := flag.Bool("dev-log", false, "use zap's human-readable development logger instead of JSON production logging")
	flag.Parse()

	if *configPath == "" || *selfID == 0 {
		log.Fatal("both -config and -id are required")
	}

	var zlog *zap.Logger
	var err error
	if *devLog {
		zlog, err = zap.NewDevelopment()
	} else {
		zlog, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer zlog.Sync()
	logger := zlog.Sugar()

	file, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalw("loading config", "err", err)
	}

	n, err := node.New(node.Options{
		SelfID:       *selfID,
		File:         file,
		Timing:       config.DefaultTiming(),
		DiagHTTPPort: *diagPort,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatalw("constructing node", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		logger.Fatalw("starting node", "err", err)
	}
	logger.Infow("node started", "self_id", *selfID, "diag_port", *diagPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	n.Stop()
	logger.Info("shutdown complete")
}

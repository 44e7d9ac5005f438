// The processor agent: local socket ingress, dedup and evidence store,
// webhook shipper with sync beat, inference supervisor, and the control API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gidence/scm/internal/edge/api"
	"github.com/gidence/scm/internal/edge/dedup"
	"github.com/gidence/scm/internal/edge/device"
	"github.com/gidence/scm/internal/edge/receiver"
	"github.com/gidence/scm/internal/edge/shipper"
	"github.com/gidence/scm/internal/edge/supervisor"
)

func main() {
	var (
		simulation  bool
		dataDir     string
		evidenceDir string
		frameDir    string
		command     string
	)
	flag.BoolVar(&simulation, "s", false, "simulation mode: do not launch the inference engine")
	flag.BoolVar(&simulation, "simulation", false, "simulation mode: do not launch the inference engine")
	flag.StringVar(&dataDir, "data", ".", "directory holding processor.json and camera.json")
	flag.StringVar(&evidenceDir, "evidence", "./evidence", "evidence spool directory")
	flag.StringVar(&frameDir, "frame", "/tmp", "latest-frame directory written by the engine")
	flag.StringVar(&command, "command", supervisor.DefaultCommand, "inference engine launch command")
	flag.Parse()

	logger := log.New(log.Writer(), "[EDGE] ", log.LstdFlags)

	if err := os.MkdirAll(evidenceDir, 0o755); err != nil {
		logger.Fatalf("evidence dir: %v", err)
	}

	dev, err := device.Load(dataDir)
	if err != nil {
		logger.Fatalf("load device config: %v", err)
	}

	cameras := dev.Cameras()
	ids := make([]string, 0, len(cameras))
	for _, c := range cameras {
		ids = append(ids, c.ID)
	}
	reading := device.NewReading(ids)

	queue := &receiver.Queue{}
	recv := receiver.New(receiver.SocketPath, queue, reading)
	worker := dedup.New(queue, evidenceDir, frameDir)
	ship := shipper.New(dev, evidenceDir)
	sup := supervisor.New(dev, command, simulation)
	control := api.New(dev, reading, frameDir, evidenceDir)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ln, err := recv.Listen()
	if err != nil {
		logger.Fatalf("bind ingress socket: %v", err)
	}
	defer ln.Close()

	go func() {
		if err := recv.Serve(ln); err != nil {
			select {
			case <-ctx.Done():
			default:
				logger.Printf("ingress socket closed: %v", err)
			}
		}
	}()
	go worker.Run(ctx)
	go ship.Run(ctx)
	go ship.RunBeat(ctx)
	go sup.Run(ctx)

	addr := dev.Processor().Address.String()
	server := &http.Server{Addr: addr, Handler: control.Router()}
	go func() {
		<-ctx.Done()
		ln.Close()
		server.Close()
	}()

	logger.Printf("control api listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("control api: %v", err)
	}
}

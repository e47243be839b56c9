// Command confserver runs the build-configuration server described by
// §6.2: a single "server" command speaking the framed, versioned-JSON
// protocol over stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/buildconf/server/protocolv1"
	"github.com/buildconf/server/registry"
	"github.com/buildconf/server/session"
	"github.com/buildconf/server/transport"
	"github.com/buildconf/server/watch"
)

var (
	experimental bool
	debugFlag    bool
	pipeFlag     string

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Serve the build-configuration protocol over stdio",
		RunE:  runServer,
	}
)

func init() {
	serverCmd.Flags().BoolVar(&experimental, "experimental", false,
		"advertise and accept experimental protocol versions")
	serverCmd.Flags().BoolVar(&debugFlag, "debug", false,
		"log at debug level")
	serverCmd.Flags().StringVar(&pipeFlag, "pipe", "",
		"accepted for CMake-server-mode compatibility; unused, transport is always stdio")
}

func main() {
	if err := serverCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if debugFlag {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	monitor, err := watch.New()
	if err != nil {
		return fmt.Errorf("confserver: %w", err)
	}
	defer monitor.Stop()

	tp := transport.New(os.Stdin, os.Stdout, log)

	reg := registry.New()
	protocols := []*protocolv1.Protocol{
		protocolv1.New1_0(nil),
		protocolv1.New1_1(nil),
	}
	for _, p := range protocols {
		p.SetLogger(log)
		p.SetSignalSink(tp)
		p.SetOnActivated(onActivated(p, monitor, log))
		reg.Register(p)
	}

	go drainWatchEvents(monitor, protocols)

	sess := session.New(reg, tp, experimental, log)
	sess.SayHello()

	if err := tp.Run(context.Background(), sess.HandleFrame); err != nil {
		return fmt.Errorf("confserver: %w", err)
	}
	return nil
}

// onActivated points the file-change notifier at the newly bound source
// tree and republishes the watched-path lists fileSystemWatchers reports
// (§4.F, §4.J).
func onActivated(p *protocolv1.Protocol, monitor *watch.Monitor, log *slog.Logger) func(sourceDir string) {
	return func(sourceDir string) {
		if err := monitor.Add(watch.NewRoot(sourceDir)); err != nil {
			log.Error("failed to watch source directory", "error", err, "sourceDirectory", sourceDir)
			return
		}
		p.SetWatchedPaths(monitor.WatchedDirectories(), monitor.WatchedFiles())
	}
}

// drainWatchEvents is the event loop's side of §5's "thread-safe queue
// drained by the loop": every changed path is fanned out to each
// registered protocol so whichever one is actually bound marks its
// session dirty.
func drainWatchEvents(monitor *watch.Monitor, protocols []*protocolv1.Protocol) {
	for path := range monitor.Events() {
		for _, p := range protocols {
			p.NotifyFileChanged(path)
		}
	}
}

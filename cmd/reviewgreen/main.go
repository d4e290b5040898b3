// cmd/reviewgreen/main.go
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/reviewgreen/internal/account"
	"github.com/AlverezYari/reviewgreen/internal/bridge"
	"github.com/AlverezYari/reviewgreen/internal/capture"
	"github.com/AlverezYari/reviewgreen/internal/config"
	"github.com/AlverezYari/reviewgreen/internal/logging"
	"github.com/AlverezYari/reviewgreen/internal/server"
	"github.com/AlverezYari/reviewgreen/internal/share"
	"github.com/AlverezYari/reviewgreen/internal/storage"
	"github.com/AlverezYari/reviewgreen/internal/tui"
	"github.com/AlverezYari/reviewgreen/pkg/camera"
	"github.com/AlverezYari/reviewgreen/pkg/camera/opencv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if err := logging.Init(cfg.Log.Path); err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer logging.Close()
	logging.SetVerbosity(logging.ParseVerbosity(cfg.Log.Level))

	db, err := storage.InitDB(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	users, err := account.Load(db)
	if err != nil {
		return err
	}

	srv := server.New(cfg.ServerIP, cfg.ServerPort, cfg.AllowedOrigins, db)
	if err := srv.Start(); err != nil {
		logging.Errorf("Error starting server: %v", err)
	}
	defer func() {
		if srv.IsRunning() {
			srv.Stop()
		}
	}()

	cam := opencv.NewManager(cfg.CameraConfig.BackDeviceID, cfg.CameraConfig.FrontDeviceID, cfg.CameraConfig.StreamConfig.FPS)
	defer cam.CloseAll()

	adapter := bridge.NewAdapter(bridge.NewCommandBridge(cfg.Bridge.CameraCommand, cfg.Bridge.GalleryCommand))
	adapter.Options.Quality = cfg.Bridge.Quality
	adapter.Options.AllowEditing = cfg.Bridge.AllowEditing
	adapter.Options.ResultType = cfg.Bridge.ResultType
	notifier := capture.NewChanNotifier(32)

	controller := capture.NewController(capture.Config{
		Providers: []capture.Provider{
			capture.NewStreamProvider(camera.Options{
				Acquirer:   cam,
				Encoder:    opencv.MatEncoder{},
				Locators:   srv,
				Sink:       srv,
				Resolution: cfg.Resolution(),
				Quality:    cfg.CameraConfig.JPEGQuality,
			}, cfg.Facing()),
			capture.NewBridgeProvider(adapter),
		},
		Gallery:   adapter,
		Submitter: share.NewSubmitter(cfg.Storage.ShareDir, db, users),
		Notifier:  notifier,
		Locators:  srv,
	})
	defer controller.Close()

	p := tea.NewProgram(
		tui.New(tui.Deps{
			Config:     cfg,
			Users:      users,
			Controller: controller,
			Notifier:   notifier,
			Server:     srv,
			Shares:     db,
			Devices:    cam,
		}),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

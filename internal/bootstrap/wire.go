package bootstrap

import (
	"net/http"

	"go.mau.fi/util/ffmpeg"

	"camflip/internal/camera"
	"camflip/internal/capture"
	"camflip/internal/config"
	"camflip/internal/domain"
	"camflip/internal/log"
	"camflip/internal/ports"
	"camflip/internal/preview"
	"camflip/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Preview    http.Handler
	Mirror     *log.Mirror
}

// Build wires all backend dependencies for the current runtime. The mirror
// receives a copy of every log entry and may be nil.
func Build(eventSink ports.EventSink, surface ports.PlaybackSurface, mirror *log.Mirror) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	log.Configure(log.Config{Level: cfg.Log.Level, Mirror: mirror})
	logger := log.WithComponent("bootstrap")
	if cfg.Path != "" {
		logger.Info().Str("path", cfg.Path).Msg("loaded config file")
	}

	ffmpeg.SetPath(cfg.Capture.FFmpegCommand)
	platform := capture.NewPlatform(capture.Config{
		FFmpegCommand: cfg.Capture.FFmpegCommand,
		SysfsRoot:     cfg.Capture.SysfsRoot,
		DevRoot:       cfg.Capture.DevRoot,
		InputFormat:   cfg.Capture.InputFormat,
		MJPEGQuality:  cfg.Capture.MJPEGQuality,
		StartupGrace:  cfg.Capture.StartupGrace(),
		FacingMap:     cfg.Capture.FacingMap(),
		AudioEnabled:  cfg.Constraints.Audio,
		AudioFormat:   cfg.Capture.AudioFormat,
		AudioDevice:   cfg.Capture.AudioDevice,
	}, log.WithComponent("capture"))

	controller := usecase.NewSessionController(
		camera.NewProber(platform, log.WithComponent("prober")),
		camera.NewEnumerator(platform, log.WithComponent("enumerator"), cfg.Session.DescribeParallel),
		camera.NewAcquirer(platform, log.WithComponent("acquirer")),
		surface,
		eventSink,
		log.WithComponent("session"),
		usecase.Config{
			Constraints:     cfg.Constraints.DomainConstraints(),
			Strategy:        camera.ParseStrategy(cfg.Session.Strategy),
			SwapOrder:       usecase.SwapOrder(cfg.Session.SwapOrder),
			ProbeFacingMode: domain.FacingMode(cfg.Session.ProbeFacingMode),
			DescribeDevices: cfg.Session.DescribeDevices,
			HistorySize:     cfg.Session.HistorySize,
		},
	)

	return Services{
		Controller: controller,
		Config:     cfg,
		Preview:    preview.NewHandler(controller, log.WithComponent("preview")),
		Mirror:     mirror,
	}, nil
}

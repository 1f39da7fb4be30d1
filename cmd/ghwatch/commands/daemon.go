package commands

import (
	"fmt"
	"os"

	"github.com/nhle/ghwatch/internal/app"
	"github.com/nhle/ghwatch/internal/logging"
	"github.com/nhle/ghwatch/internal/metrics"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/schedule"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Schedule string `help:"Override the configured schedule (cron expression or @every duration)"`
	NoReload bool   `name:"no-reload" help:"Do not watch the configuration file for changes"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if d.Schedule != "" {
		cfg.Monitoring.Schedule = d.Schedule
	}
	if _, err := schedule.ParseSpec(cfg.Monitoring.Schedule); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var rec *metrics.PrometheusRecorder
	var opts []app.Option
	if cfg.Metrics.Enabled {
		rec = metrics.NewPrometheusRecorder(nil)
		opts = append(opts, app.WithMetrics(rec))
	}

	a, log, err := root.openAppWith(cfg, opts...)
	if err != nil {
		return err
	}
	defer closeApp(a, log)
	log = logging.Component(log, "daemon")

	var metricsDone chan struct{}
	if rec != nil {
		metricsDone = make(chan struct{})
		go func() {
			defer close(metricsDone)
			if err := rec.Serve(ctx, cfg.Metrics.Listen); err != nil {
				log.Error().Err(err).Str("listen", cfg.Metrics.Listen).Msg("metrics server stopped")
			}
		}()
	}

	r := renderer()
	sched := schedule.New(a, log, schedule.WithSummaryHandler(func(s model.PassSummary, _ error) {
		fmt.Fprint(g.Out, r.PassSummary(s))
	}))

	if !d.NoReload {
		if _, err := os.Stat(root.Config); err == nil {
			v := model.NewViper(root.Config)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("reading config %s: %w", root.Config, err)
			}
			schedule.WatchConfig(v, log, func(next *model.AppConfig) {
				if d.Schedule != "" {
					next.Monitoring.Schedule = d.Schedule
				}
				if root.LogLevel != "" {
					next.Logging.Level = root.LogLevel
				}
				a.SetConfig(next)
				if err := sched.Reschedule(next.Monitoring.Schedule); err != nil {
					log.Error().Err(err).Msg("keeping previous schedule")
				}
			})
		}
	}

	log.Info().
		Str("schedule", cfg.Monitoring.Schedule).
		Str("transport", cfg.Delivery.Transport).
		Bool("metrics", cfg.Metrics.Enabled).
		Msg("daemon starting")

	if err := sched.Run(ctx, cfg.Monitoring.Schedule); err != nil {
		return err
	}

	if metricsDone != nil {
		<-metricsDone
	}
	log.Info().Msg("daemon stopped")
	return nil
}

package schedule

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/nhle/ghwatch/internal/model"
)

// WatchConfig re-reads the config file behind v whenever it changes and
// hands the decoded value to apply. A file that fails to decode is
// logged and ignored, so the previous config stays in effect.
func WatchConfig(v *viper.Viper, log zerolog.Logger, apply func(*model.AppConfig)) {
	log = log.With().Str("config", v.ConfigFileUsed()).Logger()

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := model.DecodeConfig(v)
		if err != nil {
			log.Error().Err(err).Msg("config reload rejected")
			return
		}
		log.Info().Str("op", e.Op.String()).Msg("config reloaded")
		apply(cfg)
	})
	v.WatchConfig()
}

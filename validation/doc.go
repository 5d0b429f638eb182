// Package validation validates configuration structs and request values.
//
// Struct tags, reported by their config key:
//
//	type Config struct {
//	    StartupTimeout time.Duration `mapstructure:"startup_timeout" validate:"gt=0"`
//	}
//	err := validation.Validate(cfg)
//
// Programmatic checks:
//
//	v := validation.New()
//	v.Required("audio_path", req.AudioPath).Min("n_threads", req.Threads, 0)
//	if err := v.Validate(); err != nil { ... }
package validation

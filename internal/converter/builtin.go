package converter

import (
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
)

// Builtin returns every converter this build ships, minus the ones named in
// cfg.Disabled. Availability is checked later by the registry.
func Builtin(cfg *Config, log *logger.Logger) []Converter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log = log.Named("converter")

	all := []Converter{
		NewFFmpeg(cfg, log),
		NewImage(cfg, log),
		NewTabular(log),
		NewOffice(cfg, log),
		NewDocument(cfg, log),
		NewMarkdown(),
		NewDrawio(cfg, log),
	}

	out := make([]Converter, 0, len(all))
	for _, c := range all {
		if !cfg.disabled(c.Name()) {
			out = append(out, c)
		}
	}
	return out
}

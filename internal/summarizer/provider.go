package summarizer

import (
	"fmt"

	"github.com/pbaille/coffeechat/internal/config"
)

// NewGenerator builds the provider named in cfg. Provider "none" returns a
// nil Generator, which makes the Summarizer use its fallback only.
func NewGenerator(cfg config.Summarizer) (Generator, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "gemini":
		return NewGemini(cfg.APIKey, cfg.Model)
	case "anthropic":
		return NewAnthropic(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q", cfg.Provider)
	}
}

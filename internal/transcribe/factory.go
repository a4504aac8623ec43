package transcribe

import (
	"fmt"

	"inkwell/internal/config"
	"inkwell/internal/pipeline"
)

// NewTranscriberFromConfig creates a Transcriber implementation based on the transcriber config type.
func NewTranscriberFromConfig(cfg config.TranscriberConfig) (pipeline.Transcriber, error) {
	switch cfg.Type {
	case "command":
		return NewCommandTranscriber(cfg.Command, cfg.Args)
	default:
		return nil, fmt.Errorf("unknown transcriber type: %s", cfg.Type)
	}
}

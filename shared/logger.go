package shared

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	wd, err := os.Getwd()
	if err != nil {
		wd = ""
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
		FormatCaller: func(i interface{}) string {
			path, ok := i.(string)
			if !ok {
				return ""
			}
			relPath, err := filepath.Rel(wd, path)
			if err != nil {
				relPath = path
			}
			return fmt.Sprintf("[%s]", relPath)
		},
		NoColor: os.Getenv("NO_COLOR") != "",
	}
	log.Logger = zerolog.New(consoleWriter).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetLevel applies a level name ("debug", "info", "warn", ...) to the global logger.
// Unknown names leave the level unchanged.
func SetLevel(level string) {
	if strings.TrimSpace(level) == "" {
		return
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level")
		return
	}
	log.Logger = log.Logger.Level(lvl)
}

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// Init sets up apex/log for the process. format is "json" (Lambda, containers)
// or "text" (local CLI). Unknown levels fall back to info.
func Init(level, format string) {
	InitWriter(os.Stderr, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level, format string) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		log.SetHandler(text.New(w))
	default:
		log.SetHandler(json.New(w))
	}
	log.SetLevel(ParseLevel(level))
}

// ParseLevel maps a level name to an apex level, defaulting to info.
func ParseLevel(level string) log.Level {
	l, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return l
}

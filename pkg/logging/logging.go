// Package logging routes the standard logger through a rotating file
// alongside stdout.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the global logger. An empty path logs to stdout only.
func Setup(path string) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if path == "" {
		return
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
}

// Package main is the entry point for the midi2wav development server
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/james-see/midi2wav/pkg/api"
	"github.com/james-see/midi2wav/pkg/config"
	"github.com/james-see/midi2wav/pkg/logging"
	"github.com/james-see/midi2wav/pkg/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	port := flag.Int("port", cfg.Port, "Server port")
	flag.Parse()

	fmt.Printf("Starting midi2wav development server on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	err = api.StartServer(*port, api.Options{
		UploadDir: cfg.UploadDir,
		TTL:       cfg.TTL,
		Fields: upload.Fields{
			OutputName: cfg.OutputField,
			Waveform:   cfg.WaveformField,
		},
		Logger: logging.New(os.Stderr, cfg.LogLevel),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

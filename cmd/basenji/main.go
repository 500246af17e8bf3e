package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for "basenji" which includes:
 *
 *			Multi-source audio routing between a Mumble
 *			  channel and a radio transmitter.
 *			RMS signal detection with attack / release
 *			  hysteresis.
 *			Priority arbitration with hard ducking.
 *			PTT keying by CM108 GPIO, gpiochip line, or
 *			  serial RTS/DTR.
 *			Per-device watchdog recovery.
 *			Morse station identification and roger beep.
 *			Point to point PCM link to a peer bridge.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	basenji "github.com/doismellburning/basenji/src"
)

func main() {
	var _config = pflag.StringP("config", "c", "basenji.yaml", "Configuration file")
	var _logLevel = pflag.StringP("log-level", "l", "info", "Log level: debug, info, warn, error")
	var _noPTT = pflag.BoolP("no-ptt", "n", false, "Never key the transmitter, regardless of configuration")
	var _version = pflag.Bool("version", false, "Print version and exit.")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Mumble to radio voice bridge.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	if *_version {
		basenji.PrintVersion(true)
		os.Exit(0)
	}

	if lvl, err := log.ParseLevel(*_logLevel); err != nil {
		log.Warn("unknown log level, using info", "level", *_logLevel)
	} else {
		log.SetLevel(lvl)
	}

	var cfg = basenji.LoadConfig(*_config)
	if *_noPTT {
		cfg.PTT.Method = "none"
	}

	var engine, err = basenji.NewEngine(cfg, basenji.EngineDeps{})
	if err != nil {
		log.Fatal("startup failed", "error", err)
	}

	var ctx, stop = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(ctx); err != nil {
		log.Fatal("bridge failed", "error", err)
	}
}

// Command lexturn talks to a conversational bot from the terminal, from WAV
// files or over phone calls.
//
//	lexturn [-config path] chat|file|serve|dial [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/harunnryd/lexturn/pkg/config"
	_ "github.com/harunnryd/lexturn/pkg/encoder/opus"
	"github.com/harunnryd/lexturn/pkg/errorsx"
	"github.com/harunnryd/lexturn/pkg/logging"
	"github.com/harunnryd/lexturn/pkg/redact"
)

type command func(ctx context.Context, app *app, args []string) error

var commands = map[string]command{
	"chat":  runChat,
	"file":  runFile,
	"serve": runServe,
	"dial":  runDial,
}

// app is what every command shares.
type app struct {
	cfg config.Config
	log *slog.Logger
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	log := logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	slog.SetDefault(log)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, &app{cfg: cfg, log: log}, flag.Args()[1:]); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("command_failed", "command", flag.Arg(0), "error", err.Error(),
			"reason_code", string(errorsx.Reason(err)))
		stop()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: lexturn [-config path] <command> [flags]")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  chat    text conversation on stdin/stdout")
	fmt.Fprintln(os.Stderr, "  file    audio conversation from WAV files, one per turn")
	fmt.Fprintln(os.Stderr, "  serve   answer Twilio calls and bridge them to the bot")
	fmt.Fprintln(os.Stderr, "  dial    place an outbound call answered by serve")
	flag.PrintDefaults()
}

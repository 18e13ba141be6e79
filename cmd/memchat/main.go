package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/petasbytes/memchat/internal/app"
	"github.com/petasbytes/memchat/internal/config"
	"github.com/petasbytes/memchat/internal/console"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := config.NewFlagSet(config.AppName)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if schema, _ := fs.GetBool("print-schema"); schema {
		b, err := config.Schema()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Println(string(b))
		return 0
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	if dump, _ := fs.GetBool("print-config"); dump {
		b, err := cfg.DumpYAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Print(string(b))
		return 0
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		return 1
	}

	logger, err := app.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	if f := cfg.File(); f != "" {
		logger.Debug().Str("path", f).Msg("config file loaded")
	}

	// Graceful shutdown on Ctrl-C (SIGINT) / SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigch)
	go func() {
		<-sigch
		fmt.Println("\nExiting...")
		cancel()
	}()

	ui := console.New(os.Stdin, os.Stdout, os.Stderr, console.Options{
		Markdown: cfg.UI.Markdown,
		Document: cfg.Document.Name,
	})

	s, err := app.Build(ctx, cfg, logger, ui)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn().Err(err).Msg("shutdown")
		}
	}()

	ui.Attach(s.Runner, s.History)
	fmt.Printf("Chatting as %s (Ctrl-C to quit)\n", s.Generator.Name())
	if err := ui.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: stdin read error: %v\n", err)
	}
	return 0
}

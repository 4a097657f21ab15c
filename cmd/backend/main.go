package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vcanalyst/internal/backend"
	"vcanalyst/internal/config"
)

func main() {
	port := flag.String("port", "", "server port (overrides PORT)")
	stepDelay := flag.Duration("step-delay", 400*time.Millisecond, "pause between streamed frames")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	addr := cfg.Port
	if *port != "" {
		addr = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := backend.Options{
		APIKey:     cfg.Client.APIKey,
		Researcher: backend.CannedResearcher{},
		StepDelay:  *stepDelay,
	}
	if cfg.Gemini.Enabled() {
		responder, err := backend.NewGeminiResponder(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			log.Fatalf("failed to init gemini: %v", err)
		}
		log.Printf("chat responder: %s", responder.Name())
		opts.Responder = responder
	} else {
		log.Printf("chat responder: canned (set GEMINI_API_KEY to use Gemini)")
		opts.Responder = backend.CannedResponder{}
	}
	if opts.APIKey == "" {
		log.Printf("API_KEY is empty; requests are not authenticated")
	}

	srv := backend.NewServer(addr, backend.CORS(backend.New(opts)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("server stopped")
}

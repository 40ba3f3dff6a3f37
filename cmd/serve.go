package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/desertthunder/mixgen/internal/queue"
	"github.com/desertthunder/mixgen/internal/server"
	"github.com/desertthunder/mixgen/internal/services"
	"github.com/desertthunder/mixgen/internal/session"
	"github.com/desertthunder/mixgen/internal/shared"
	"github.com/desertthunder/mixgen/internal/tasks"
	"github.com/desertthunder/mixgen/internal/ui"
	"github.com/urfave/cli/v3"
)

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the playlist generation HTTP service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to config.toml"},
			&cli.BoolFlag{Name: "open", Usage: "open the landing page in the browser"},
		},
		Action: r.Serve,
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Write a starter config.toml to the current directory",
		Action: r.Setup,
	}
}

// Serve wires up the session manager, clients, engine, and HTTP routes, then
// runs the server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.config
	if path := cmd.String("config"); path != "" {
		loaded, err := shared.LoadConfig(path)
		if err != nil {
			return err
		}
		config = loaded
	}

	oauthConfig, err := services.NewSpotifyOAuthConfig(config.Credentials.Spotify)
	if err != nil {
		return err
	}

	completer, err := services.NewOpenAIService(config.Credentials.OpenAI, nil)
	if err != nil {
		return err
	}

	sessions := session.NewManager(oauthConfig, session.NewFileStore(config.TokenPath()), r.logger)
	spotify := services.NewSpotifyService(nil, 0)
	q := queue.New(queue.Options{Logger: r.logger})

	engine := tasks.NewEngine(tasks.EngineOpts{
		Service:      spotify,
		Completer:    completer,
		Queue:        q,
		Logger:       r.logger,
		DevMode:      config.App.DevMode,
		SnapshotPath: config.SnapshotPath(),
	})

	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger))
	router.Handler(&server.LandingHandler{})
	router.Handler(server.NewAuthHandler(sessions, r.logger))
	server.NewPlaylistHandler(engine, sessions, r.logger).Register(router)

	addr := config.Addr()
	url := fmt.Sprintf("http://%s", addr)

	r.writePlain("%s\n", ui.Title("mixgen"))
	r.writePlain("%s %s\n", ui.OK("Listening on"), url)
	if config.App.DevMode {
		r.writePlain("%s\n", ui.Warn("dev mode: playlist suggestions are snapshot-cached"))
	}
	r.writePlain("%s\n", ui.Help("visit /login to authorize, Ctrl+C to stop"))

	if cmd.Bool("open") {
		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warn("failed to open browser", "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: router}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		r.logger.Info("shutting down")
		return srv.Shutdown(context.Background())
	}
}

// Setup writes the embedded example config to ./config.toml.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	return r.setup("config.toml")
}

func (r *Runner) setup(path string) error {
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.writePlain("%s\n", ui.OK("✓ Wrote config.toml"))
	r.writePlain("%s\n", ui.Help("fill in your Spotify and OpenAI credentials, then run `mixgen serve`"))
	return nil
}

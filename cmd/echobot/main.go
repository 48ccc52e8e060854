// Command echobot is a small webhook host for the botdialogs runtime. It
// wires a demo library (greeting waterfall, echo fallback, global help and
// cancel actions) into a Router and exposes it over HTTP:
//
//	POST /messages  body: spec.Message JSON  ->  TurnResult JSON
//	GET  /healthz
//
// Configuration comes from the environment (a .env file is honored):
//
//	PORT          listen port            (default 8080)
//	STATE_STORE   memory | redis | postgres (default memory)
//	REDIS_ADDR    redis address, when STATE_STORE=redis
//	POSTGRES_DSN  postgres DSN, when STATE_STORE=postgres
//	INTENTS_FILE  optional fsrecognizer YAML definition file
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	botdialogs "github.com/flexigpt/botdialogs-go"
	"github.com/flexigpt/botdialogs-go/fsrecognizer"
	"github.com/flexigpt/botdialogs-go/pgstatestore"
	"github.com/flexigpt/botdialogs-go/redisstatestore"
	"github.com/flexigpt/botdialogs-go/spec"
)

type config struct {
	Port        string
	StateStore  string
	RedisAddr   string
	PostgresDSN string
	IntentsFile string
}

func loadConfig() config {
	for _, path := range []string{".env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}
	return config{
		Port:        getEnv("PORT", "8080"),
		StateStore:  getEnv("STATE_STORE", "memory"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		IntentsFile: os.Getenv("INTENTS_FILE"),
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// newStateStore picks the configured backend. The returned closer is non-nil
// when the store owns a connection.
func newStateStore(ctx context.Context, cfg config) (spec.StateStore, func() error, error) {
	switch cfg.StateStore {
	case "", "memory":
		return nil, nil, nil // Router defaults to memstatestore.

	case "redis":
		st, err := redisstatestore.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		st.SetTTL(24 * time.Hour)
		return st, st.Close, nil

	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, errors.New("STATE_STORE=postgres requires POSTGRES_DSN")
		}
		st, err := pgstatestore.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		return st, st.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown STATE_STORE %q", cfg.StateStore)
	}
}

// newRootLibrary builds the demo bot: a greeting waterfall that prompts for a
// name, an echo fallback dialog, and global help/cancel actions.
func newRootLibrary(ctx context.Context, cfg config, logger *slog.Logger) (*botdialogs.Library, error) {
	lib := botdialogs.NewLibrary("echobot")

	greet := botdialogs.NewWaterfall(
		func(ctx context.Context, s *botdialogs.Session, _ spec.DialogResult) error {
			return s.BeginDialog(ctx, "system:prompt-text", botdialogs.PromptOptions{
				Prompt:      "Hi! What is your name?",
				RetryPrompt: "Sorry, I did not catch that. What is your name?",
				MaxRetries:  2,
			})
		},
		func(ctx context.Context, s *botdialogs.Session, res spec.DialogResult) error {
			name, _ := res.Response.(string)
			if name == "" {
				name = "stranger"
			}
			s.UserData()["name"] = name
			s.Send("Nice to meet you, %s!", name)
			return s.EndDialog(ctx)
		},
	)
	if err := lib.Dialog("greet", greet); err != nil {
		return nil, err
	}

	echo := &botdialogs.SimpleDialog{
		Handler: func(ctx context.Context, s *botdialogs.Session, _ any) error {
			s.Send("You said: %s", s.Message().Text)
			return s.EndDialog(ctx)
		},
	}
	if err := lib.Dialog("echo", echo); err != nil {
		return nil, err
	}

	lib.Recognizer(botdialogs.NewRegexpRecognizer("Greet", regexp.MustCompile(`(?i)^(hi|hello|hey)\b`)))
	if cfg.IntentsFile != "" {
		extra, err := fsrecognizer.Load(ctx, cfg.IntentsFile)
		if err != nil {
			return nil, err
		}
		for _, r := range extra {
			lib.Recognizer(r)
		}
		logger.Info("loaded intent definitions", "file", cfg.IntentsFile, "count", len(extra))
	}

	if err := lib.TriggerAction("greet", &botdialogs.ActionOptions{Matches: []string{"Greet"}}); err != nil {
		return nil, err
	}
	err := lib.Actions().BeginDialogAction("startEcho", "echo", &botdialogs.ActionOptions{
		MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)^echo\b`)},
	})
	if err != nil {
		return nil, err
	}
	err = lib.Actions().Action("help", func(ctx context.Context, s *botdialogs.Session, _ spec.RouteData) error {
		s.Send("Say 'hi' to be greeted, 'echo ...' to start echoing, or 'goodbye' to end.")
		return nil
	}, &botdialogs.ActionOptions{
		MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)^help$`)},
	})
	if err != nil {
		return nil, err
	}
	err = lib.Actions().EndConversationAction("goodbye", "Goodbye!", &botdialogs.ActionOptions{
		MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)^(goodbye|bye)$`)},
	})
	if err != nil {
		return nil, err
	}

	return lib, nil
}

func newMux(router *botdialogs.Router, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /messages", func(w http.ResponseWriter, req *http.Request) {
		var msg spec.Message
		if err := json.NewDecoder(req.Body).Decode(&msg); err != nil {
			http.Error(w, "invalid message body", http.StatusBadRequest)
			return
		}
		result, err := router.ProcessMessage(req.Context(), msg)
		if err != nil {
			logger.Error("turn failed", "error", err)
			http.Error(w, "turn failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.Error("encode response", "error", err)
		}
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg := loadConfig()

	store, closeStore, err := newStateStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	if closeStore != nil {
		defer func() { _ = closeStore() }()
	}

	lib, err := newRootLibrary(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build library: %w", err)
	}

	opts := []botdialogs.Option{botdialogs.WithLogger(logger)}
	if store != nil {
		opts = append(opts, botdialogs.WithStateStore(store))
	}
	router, err := botdialogs.New(lib, opts...)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(router, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "store", cfg.StateStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("echobot exited", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/a2s/internal/repositories"
	"github.com/desertthunder/a2s/internal/services"
	"github.com/desertthunder/a2s/internal/shared"
	"github.com/desertthunder/a2s/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	configured bool
	api        services.Gateway
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config   // Skips loading --config when set
	ConfigPath string           // Default: config.toml
	API        services.Gateway // Default: HTTP client built from config
	HTTPClient *http.Client     // Default: bearer-token client built from config
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	configured := opts.Config != nil
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		configured: configured,
		api:        opts.API,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		healthCommand, modelsCommand,
		submitCommand, batchCommand,
		statusCommand, batchStatusCommand, batchResultCommand,
		downloadCommand, watchCommand,
		tuiCommand, serveCommand,
		historyCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// configure loads the config file named by --config and applies the log level.
//
// An explicitly passed path must exist. The default path is optional and falls back to the
// embedded defaults.
func (r *Runner) configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if path == "" {
		path = "config.toml"
	}
	if r.configPath == "" || cmd.IsSet("config") {
		r.configPath = path
	}

	switch {
	case cmd.IsSet("config"):
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	case !r.configured:
		if _, err := os.Stat(r.configPath); err == nil {
			config, err := shared.LoadConfig(r.configPath)
			if err != nil {
				return ctx, err
			}
			r.config = config
		}
	}

	if err := shared.ApplyLogLevel(r.logger, r.config.Log.Level); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	if l != nil {
		r.logger = l
	}
}

// gateway returns the injected gateway or builds the HTTP client from config on first use.
func (r *Runner) gateway(ctx context.Context) services.Gateway {
	if r.api == nil {
		client := r.httpClient
		if client == nil {
			client = shared.NewHTTPClient(ctx, r.config.API.Token, r.config.RequestTimeout())
		}
		r.api = services.NewClient(r.config.APIBase(), client)
	}
	return r.api
}

// openHistory opens the result history. The returned func closes the database.
func (r *Runner) openHistory() (*repositories.History, func(), error) {
	db, err := shared.OpenHistory(r.config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return repositories.NewHistory(db), func() { db.Close() }, nil
}

// resultStore is [Runner.openHistory] for the coordinator. A database that can't be opened
// disables history instead of failing the command.
func (r *Runner) resultStore() (tasks.ResultStore, func()) {
	history, closeFn, err := r.openHistory()
	if err != nil {
		r.logger.Warn("result history disabled", "err", err)
		return nil, func() {}
	}
	return history, closeFn
}

// newCoordinator wires a coordinator with cadences from config.
func (r *Runner) newCoordinator(ctx context.Context, store tasks.ResultStore) *tasks.Coordinator {
	return tasks.NewCoordinator(tasks.CoordinatorOpts{
		Gateway:         r.gateway(ctx),
		Logger:          r.logger,
		Store:           store,
		TaskInterval:    r.config.TaskInterval(),
		BatchInterval:   r.config.BatchInterval(),
		NotificationTTL: r.config.NotificationTTL(),
	})
}

func (r *Runner) waitOpts(prog chan<- tasks.ProgressUpdate) tasks.WaitOpts {
	return tasks.WaitOpts{
		MaxWait:  r.config.WaitTimeout(),
		Interval: r.config.WaitInterval(),
		Progress: prog,
	}
}

// progress prints updates until the returned func is called. The func waits for the printer to drain.
func (r *Runner) progress() (chan tasks.ProgressUpdate, func()) {
	ch := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range ch {
			switch update.Phase {
			case tasks.Polling:
				r.writePlain("⏳ %s\n", update.Message)
			case tasks.Downloading:
				r.writePlain("   [%d/%d] %s\n", update.Step, update.Total, update.Message)
			default:
				r.writePlain("%s\n", update.Message)
			}
		}
	}()

	return ch, func() {
		close(ch)
		<-done
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

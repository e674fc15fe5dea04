package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"workcal/internal/calendar"
	"workcal/internal/config"
	"workcal/internal/ics"
	appLog "workcal/internal/log"
	"workcal/internal/model"
	"workcal/internal/permission"
	"workcal/internal/store"
	"workcal/internal/web"
)

const version = "0.1.0"

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "workcal",
		Usage:   "Serve a shared workspace calendar over HTTP.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "/etc/workcal/config.yaml",
				Usage:   "Path to config file",
				EnvVars: []string{"WORKCAL_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			exportCommand(),
			rolesCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		appLog.Error("workcal failed", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config if set)"},
			&cli.StringFlag{Name: "seed", Usage: "Load events from an .ics file at startup"},
		},
		Action: func(c *cli.Context) error {
			conf, loc, err := loadConfig(c)
			if err != nil {
				return err
			}
			// CLI --listen overrides config file listen if provided.
			if l := c.String("listen"); l != "" {
				conf.Listen = l
			}

			appLog.Info("effective config",
				"listen", conf.Listen,
				"timezone", conf.Timezone,
				"workspace_id", conf.WorkspaceID,
				"role", conf.Role,
				"default_view", conf.DefaultView,
				"store_path", conf.StorePath,
				"snapshot_path", conf.Snapshot.Path,
				"snapshot_cron", conf.Snapshot.Cron,
			)

			cal, closeStore, err := openCalendar(c.Context, conf, loc)
			if err != nil {
				return err
			}
			defer closeStore()

			if seedPath := c.String("seed"); seedPath != "" {
				if err := seed(cal, seedPath); err != nil {
					return fmt.Errorf("seed events from %s: %w", seedPath, err)
				}
			}

			srv := web.NewServer(conf, cal)

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if conf.Snapshot.Path != "" {
				sched := cron.New(cron.WithLocation(loc))
				if _, err := sched.AddFunc(conf.Snapshot.Cron, func() { writeSnapshot(srv, conf.Snapshot.Path) }); err != nil {
					return fmt.Errorf("invalid snapshot schedule %q: %w", conf.Snapshot.Cron, err)
				}
				sched.Start()
				defer func() {
					<-sched.Stop().Done()
					// Final snapshot so the file reflects the state at exit.
					writeSnapshot(srv, conf.Snapshot.Path)
				}()
			}

			if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			appLog.Info("workcal exiting")
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the stored events as an .ics file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "Output path; stdout when empty"},
		},
		Action: func(c *cli.Context) error {
			conf, loc, err := loadConfig(c)
			if err != nil {
				return err
			}
			if conf.StorePath == "" {
				return errors.New("export needs store_path to be configured")
			}
			cal, closeStore, err := openCalendar(c.Context, conf, loc)
			if err != nil {
				return err
			}
			defer closeStore()

			body := []byte(ics.Export(cal.Events(), ics.ExportOptions{
				Name:     conf.WorkspaceID,
				Location: loc,
				Now:      time.Now(),
			}))
			if out := c.String("out"); out != "" {
				return config.WriteFileAtomic(out, body, 0o644)
			}
			_, err = os.Stdout.Write(body)
			return err
		},
	}
}

func rolesCommand() *cli.Command {
	return &cli.Command{
		Name:  "roles",
		Usage: "Print the capabilities granted to each workspace role.",
		Action: func(c *cli.Context) error {
			return printRoles(c.App.Writer)
		},
	}
}

func printRoles(w io.Writer) error {
	caps := []permission.Capability{
		permission.CreateEvents,
		permission.EditEvents,
		permission.DeleteEvents,
		permission.ManageMembers,
		permission.ManageIntegrations,
		permission.ManageSettings,
		permission.ViewAllEvents,
		permission.ExportCalendar,
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "ROLE")
	for _, c := range caps {
		fmt.Fprintf(tw, "\t%s", c)
	}
	fmt.Fprintln(tw)
	for _, role := range permission.Roles() {
		set := permission.Resolve(role)
		fmt.Fprint(tw, role)
		for _, c := range caps {
			mark := "-"
			if set.Has(c) {
				mark = "yes"
			}
			fmt.Fprintf(tw, "\t%s", mark)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// loadConfig reads the config file, applies environment overrides and
// configures logging.
func loadConfig(c *cli.Context) (*config.Config, *time.Location, error) {
	path := c.String("config")
	conf, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := conf.ApplyEnv(); err != nil {
		return nil, nil, err
	}
	appLog.Configure(appLog.ParseLevel(conf.LogLevel), conf.LogFormat, nil)
	appLog.Info("workcal starting", "version", version)

	loc, err := conf.Location()
	if err != nil {
		return nil, nil, err
	}
	return conf, loc, nil
}

// openCalendar builds the Machine. With a store configured, stored events
// are restored and every mutation is written through; otherwise changes
// are only logged.
func openCalendar(ctx context.Context, conf *config.Config, loc *time.Location) (*calendar.Machine, func(), error) {
	opts := calendar.Options{
		WorkspaceID: conf.WorkspaceID,
		UserID:      conf.UserID,
		Location:    loc,
		View:        model.ViewMode(conf.DefaultView),
		Hook:        calendar.HookFunc(logPersist),
	}
	if conf.StorePath == "" {
		return calendar.New(opts), func() {}, nil
	}

	st, err := store.Open(conf.StorePath)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			appLog.Error("failed to close store", err)
		}
	}

	events, err := st.Load(ctx, conf.WorkspaceID)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	opts.Hook = calendar.HookFunc(func(ev model.CalendarEvent, action model.Action) error {
		if err := logPersist(ev, action); err != nil {
			return err
		}
		return st.Persist(ev, action)
	})
	cal := calendar.New(opts)
	if err := cal.SetEvents(events); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("restore events: %w", err)
	}
	appLog.Info("restored events", "path", conf.StorePath, "event_count", len(events))
	return cal, closeStore, nil
}

func logPersist(ev model.CalendarEvent, action model.Action) error {
	appLog.Info("event changed", "action", string(action), "id", ev.ID, "by", ev.LastModifiedBy)
	return nil
}

// seed imports an .ics file as external creations, so seeded events also
// reach the store.
func seed(cal *calendar.Machine, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	events, err := ics.Parse(body, cal.Location())
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := cal.HandleExternalUpdate(ev, model.ActionCreated); err != nil {
			appLog.Warn("seed: event rejected", "uid", ev.ID, "err", err.Error())
		}
	}
	appLog.Info("seeded events", "path", path, "event_count", len(events))
	return nil
}

func writeSnapshot(srv *web.Server, path string) {
	start := time.Now()
	if err := config.WriteFileAtomic(path, srv.Snapshot(start), 0o644); err != nil {
		appLog.Error("snapshot write failed", err, "path", path)
		return
	}
	appLog.Debug("snapshot written", "path", path, "elapsed", time.Since(start).String())
}

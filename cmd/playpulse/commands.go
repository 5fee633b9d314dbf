package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/graaaaa/playpulse/internal/config"
	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/store"
	"github.com/graaaaa/playpulse/internal/store/backend"
	"github.com/graaaaa/playpulse/internal/store/transfer"
	"github.com/graaaaa/playpulse/internal/version"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations to the configured store and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		logging.Info().Str("backend", st.Backend()).Msg("schema up to date")
		return nil
	},
}

var reapMaxAge time.Duration

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Close stale open sessions once and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := reapOnce(cmd.Context(), st, reapMaxAge)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reaped %d session(s)\n", n)
		return nil
	},
}

var copyFlags struct {
	from, to         string
	fromPath, toPath string
	fromDSN, toDSN   string
}

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Copy every event, session and snapshot from one backend into another",
	Long: `copy reads the whole dataset from the --from backend and writes it into the
--to backend in one transaction, keeping row ids. The destination must hold no
events. Backend settings default to the storage section of the config file.`,
	Example: `  playpulse copy --from sqlite --to postgres --to-dsn postgres://localhost/playpulse
  playpulse copy --from postgres --to sqlite --to-path ./backup.sqlite`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fromCfg, err := copyStorage(cfg.Storage, copyFlags.from, copyFlags.fromPath, copyFlags.fromDSN)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		toCfg, err := copyStorage(cfg.Storage, copyFlags.to, copyFlags.toPath, copyFlags.toDSN)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		if sameStorage(fromCfg, toCfg) {
			return errors.New("source and destination are the same store")
		}

		ctx := cmd.Context()
		src, err := backend.Open(ctx, fromCfg)
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		defer src.Close()
		dst, err := backend.Open(ctx, toCfg)
		if err != nil {
			return fmt.Errorf("open destination: %w", err)
		}
		defer dst.Close()

		stats, err := transfer.Copy(ctx, src, dst)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "copied %d event(s), %d session(s), %d member snapshot(s), %d game snapshot(s)\n",
			stats.Events, stats.Sessions, stats.MemberSnapshots, stats.GameSnapshots)
		return nil
	},
}

// copyStorage derives one side of a copy from the configured storage.
func copyStorage(base config.StorageConfig, driver, path, dsn string) (config.StorageConfig, error) {
	sc := base
	sc.Driver = strings.ToLower(strings.TrimSpace(driver))
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return sc, err
		}
		sc.SQLitePath = abs
	}
	if dsn != "" {
		sc.Postgres.DSN = config.Secret(dsn)
	}

	switch sc.Driver {
	case config.DriverSQLite:
		if sc.SQLitePath == "" {
			return sc, errors.New("sqlite path is required")
		}
	case config.DriverPostgres:
		if sc.Postgres.DSN.IsEmpty() {
			return sc, errors.New("postgres dsn is required")
		}
	default:
		return sc, fmt.Errorf("%w: %q", store.ErrUnknownDriver, driver)
	}
	return sc, nil
}

func sameStorage(a, b config.StorageConfig) bool {
	if a.Driver != b.Driver {
		return false
	}
	if a.Driver == config.DriverSQLite {
		return filepath.Clean(a.SQLitePath) == filepath.Clean(b.SQLitePath)
	}
	return a.Postgres.DSN.Value() == b.Postgres.DSN.Value()
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	// The file may not exist yet, so skip the root loader.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configPath
		if path == "" {
			if _, err := config.EnsureDataDir(); err != nil {
				return err
			}
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			path = p
		}

		err := config.WriteFile(config.DefaultConfig(), path, configInitForce)
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print the version",
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	reapCmd.Flags().DurationVar(&reapMaxAge, "max-age", 0, "close sessions open longer than this (default: tracking.stale_after)")
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)

	f := copyCmd.Flags()
	f.StringVar(&copyFlags.from, "from", "", "source driver (sqlite or postgres)")
	f.StringVar(&copyFlags.to, "to", "", "destination driver (sqlite or postgres)")
	f.StringVar(&copyFlags.fromPath, "from-path", "", "source SQLite file (default: storage.sqlite_path)")
	f.StringVar(&copyFlags.toPath, "to-path", "", "destination SQLite file (default: storage.sqlite_path)")
	f.StringVar(&copyFlags.fromDSN, "from-dsn", "", "source Postgres DSN (default: storage.postgres.dsn)")
	f.StringVar(&copyFlags.toDSN, "to-dsn", "", "destination Postgres DSN (default: storage.postgres.dsn)")
	_ = copyCmd.MarkFlagRequired("from")
	_ = copyCmd.MarkFlagRequired("to")
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nerrad567/keyrhythm-core/internal/auth"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/config"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/database"
	"github.com/nerrad567/keyrhythm-core/migrations"
)

type importConfig struct {
	ConfigPath string
	DryRun     bool
	Source     string
}

func parseImportConfig(args []string, errOut io.Writer) (importConfig, error) {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var cfg importConfig
	fs.StringVar(&cfg.ConfigPath, "config", config.Path(), "path to config file")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "parse and report without writing")
	if err := fs.Parse(args); err != nil {
		return importConfig{}, errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "import: expected exactly one users.json path")
		return importConfig{}, errUsage
	}
	cfg.Source = fs.Arg(0)
	return cfg, nil
}

// runImport copies a legacy store into the credential table and prints the
// report as JSON.
func runImport(ctx context.Context, cfg importConfig, out io.Writer) error {
	src, err := os.Open(cfg.Source)
	if err != nil {
		return fmt.Errorf("opening legacy store: %w", err)
	}
	defer src.Close() //nolint:errcheck // read-only

	if cfg.DryRun {
		records, invalid, err := auth.ParseLegacyStore(src)
		if err != nil {
			return err
		}
		valid := make([]string, 0, len(records))
		for _, rec := range records {
			valid = append(valid, rec.Username)
		}
		return writeReport(out, auth.ImportReport{Imported: valid, Invalid: invalid})
	}

	appCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(ctx, appCfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // closing on exit

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	report, err := auth.ImportLegacy(ctx, auth.NewCredentialRepository(db.DB), src)
	if report != nil {
		if writeErr := writeReport(out, *report); writeErr != nil && err == nil {
			err = writeErr
		}
	}
	return err
}

func writeReport(out io.Writer, report auth.ImportReport) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

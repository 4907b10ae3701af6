package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/wot-id/identity/subject"
	"github.com/wot-id/identity/syntax"
	"github.com/wot-id/identity/util/cliutil"

	cli "github.com/urfave/cli/v2"
)

var subjectCmd = &cli.Command{
	Name:  "subject",
	Usage: "manage the SQL subject directory",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "subject directory database: sqlite://<path> or postgres://...",
			Required: true,
			EnvVars:  []string{"WOTID_DATABASE_URL", "DATABASE_URL"},
		},
	},
	Subcommands: []*cli.Command{
		&cli.Command{
			Name:  "add",
			Usage: "add or update one subject",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "email", Required: true},
				&cli.StringFlag{Name: "did", Required: true},
				&cli.StringFlag{Name: "name"},
			},
			Action: runSubjectAddCmd,
		},
		&cli.Command{
			Name:      "import",
			ArgsUsage: `<file>`,
			Usage:     "add or update every subject in a JSON directory file",
			Action:    runSubjectImportCmd,
		},
	},
}

func runSubjectAddCmd(cctx *cli.Context) error {
	did, err := syntax.ParseDID(cctx.String("did"))
	if err != nil {
		return err
	}
	e := subject.Entry{Email: cctx.String("email"), DID: did, Name: cctx.String("name")}
	n, err := importSubjects(cctx.Context, cctx.String("database-url"), []subject.Entry{e}, configLogger(cctx, os.Stderr))
	if err != nil {
		return err
	}
	return printJSON(map[string]int{"imported": n})
}

func runSubjectImportCmd(cctx *cli.Context) error {
	fname := cctx.Args().First()
	if fname == "" {
		return fmt.Errorf("need to provide a subject directory file")
	}
	entries, err := subject.LoadEntries(fname)
	if err != nil {
		return err
	}
	n, err := importSubjects(cctx.Context, cctx.String("database-url"), entries, configLogger(cctx, os.Stderr))
	if err != nil {
		return err
	}
	return printJSON(map[string]int{"imported": n})
}

// Upserts entries into the SQL subject directory, stopping at the first invalid one. Returns the number written.
func importSubjects(ctx context.Context, dburl string, entries []subject.Entry, logger *slog.Logger) (int, error) {
	db, err := cliutil.SetupDatabase(dburl, 1, logger)
	if err != nil {
		return 0, fmt.Errorf("subject database: %w", err)
	}
	sqldb, err := db.DB()
	if err != nil {
		return 0, err
	}
	defer sqldb.Close()

	so, err := subject.NewSQLOracle(db)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := so.Upsert(ctx, e); err != nil {
			return i, fmt.Errorf("subject %q: %w", e.Email, err)
		}
		logger.Info("subject imported", "email", e.Email, "did", e.DID)
	}
	return len(entries), nil
}

// Command inspect prints the columns, indexes and (on PostgreSQL) the
// constraints of every graph table.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"agora/internal/config"
	"agora/internal/database"
	"agora/internal/middleware"

	"gorm.io/gorm"
)

func main() {
	table := flag.String("table", "", "only inspect this table")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		middleware.Logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handle := database.NewHandle(cfg, database.ConnectOptions{ApplySchema: false})
	defer handle.Close()
	db, err := handle.DB()
	if err != nil {
		middleware.Logger.Error("failed to connect", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := inspect(db, os.Stdout, *table); err != nil {
		middleware.Logger.Error("inspect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type constraint struct {
	Name string `gorm:"column:conname"`
	Def  string `gorm:"column:def"`
}

func inspect(db *gorm.DB, w io.Writer, only string) error {
	found := false
	for _, model := range database.PersistentModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return err
		}
		table := stmt.Schema.Table
		if only != "" && table != only {
			continue
		}
		found = true

		fmt.Fprintf(w, "%s\n", table)
		if !db.Migrator().HasTable(model) {
			fmt.Fprintln(w, "  (missing)")
			continue
		}

		cols, err := db.Migrator().ColumnTypes(model)
		if err != nil {
			return fmt.Errorf("columns of %s: %w", table, err)
		}
		for _, c := range cols {
			nullable, _ := c.Nullable()
			fmt.Fprintf(w, "  column %s %s null=%t\n", c.Name(), strings.ToLower(c.DatabaseTypeName()), nullable)
		}

		indexes, err := db.Migrator().GetIndexes(model)
		if err != nil {
			return fmt.Errorf("indexes of %s: %w", table, err)
		}
		for _, idx := range indexes {
			unique, _ := idx.Unique()
			fmt.Fprintf(w, "  index %s (%s) unique=%t\n", idx.Name(), strings.Join(idx.Columns(), ", "), unique)
		}

		if db.Dialector.Name() != "postgres" {
			continue
		}
		var cons []constraint
		if err := db.Raw(`SELECT c.conname, pg_get_constraintdef(c.oid) AS def
			FROM pg_constraint c JOIN pg_class r ON c.conrelid = r.oid
			JOIN pg_namespace n ON n.oid = r.relnamespace
			WHERE n.nspname = current_schema() AND r.relname = ?
			ORDER BY c.conname`, table).Scan(&cons).Error; err != nil {
			return fmt.Errorf("constraints of %s: %w", table, err)
		}
		for _, c := range cons {
			fmt.Fprintf(w, "  constraint %s %s\n", c.Name, c.Def)
		}
	}
	if !found {
		return fmt.Errorf("unknown table %q", only)
	}
	return nil
}

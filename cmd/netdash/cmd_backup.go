package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/HerbHall/netdash/internal/backup"
	"github.com/HerbHall/netdash/internal/config"
)

func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	output := fs.String("output", "", "output file path (default: netdash-backup-{timestamp}.tar.gz)")
	configFile := fs.String("config", "", "config file to read database.path from and include in the backup")
	dbPath := fs.String("db", "", "preferences database (overrides database.path)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *dbPath == "" {
		v, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
			os.Exit(1)
		}
		*dbPath = v.GetString("database.path")
	}
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "error: no database configured (set database.path or --db)")
		os.Exit(1)
	}
	if *output == "" {
		*output = fmt.Sprintf("netdash-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	}

	m, err := backup.Backup(context.Background(), backup.Options{
		Database: *dbPath,
		Config:   *configFile,
		Output:   *output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Backup created: %s (%d files)\n", *output, len(m.Files))
}

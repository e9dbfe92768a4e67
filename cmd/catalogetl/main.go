// Command catalogetl loads a streaming-catalog CSV export into SQLite,
// Postgres, MySQL or SQL Server, gates the result on data-quality checks and
// prints a profiling report.
//
// Exit status: 0 on success, 2 when a data-quality check fails, 1 on any
// other error.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

package storage

// This file exists solely to pin transitive dependencies of the pgx driver so
// the go tool keeps them resolved when tidying modules in this repository.
import (
	_ "github.com/jackc/pgpassfile"
	_ "github.com/jackc/pgservicefile"
	_ "golang.org/x/sync/semaphore"
	_ "golang.org/x/text/transform"
)

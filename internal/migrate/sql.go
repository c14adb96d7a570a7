package migrate

import (
	"embed"
	"io/fs"
)

//go:embed sql/migrations/*.sql sql/seeds/*.sql
var embedded embed.FS

// Migrations returns the bundled schema migrations.
func Migrations() fs.FS {
	sub, _ := fs.Sub(embedded, "sql/migrations")
	return sub
}

// Seeds returns the bundled demo data.
func Seeds() fs.FS {
	sub, _ := fs.Sub(embedded, "sql/seeds")
	return sub
}

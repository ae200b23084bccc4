// Package migrations embeds the SQL schema files applied by the
// `telprobe migrate` command.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files lists migrations in application order.
var Files = []string{
	"001_create_module_runs.sql",
	"002_create_scheduled_validations.sql",
}

// Package appfs embeds the files the binaries need at runtime:
// SQL migrations, email and receipt templates and static assets.
package appfs

import "embed"

//go:embed migrations/*.sql templates assets
var FS embed.FS

const MigrationsDir = "migrations"

package novachat

import "embed"

// MigrationsFS holds the SQL migrations applied at server startup.
//
//go:embed migrations
var MigrationsFS embed.FS

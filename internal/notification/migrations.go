package notification

import "embed"

// Migrations holds the schema for the notifications and notification_preferences tables.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Package migrations holds the versioned SQL schema applied by the migrate command.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS

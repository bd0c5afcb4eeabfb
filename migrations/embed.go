// Package migrations holds the versioned SQL applied by "omop-export migrate".
package migrations

import "embed"

// FS contains every "<version>_<name>.sql" file in this directory.
//
//go:embed *.sql
var FS embed.FS

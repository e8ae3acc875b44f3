// Package all enables every built-in storage backend. Import it for side
// effects only:
//
//	import _ "clipivot/internal/storage/all"
package all

import (
	_ "clipivot/internal/storage/mssql"
	_ "clipivot/internal/storage/mysql"
	_ "clipivot/internal/storage/postgres"
	_ "clipivot/internal/storage/sqlite"
)

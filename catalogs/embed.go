// Package catalogs embeds the per-version hash catalog definitions.
//
// Each file under versions/ defines one game version and is evaluated by the
// catalog runtime. Files at the top level are shared Risor modules and word
// lists that version scripts import or load.
package catalogs

import "embed"

//go:embed *.risor *.txt versions/*.risor
var FS embed.FS

// Package collect turns a provider's config tree into a reproducible snapshot
// and writes snapshots back to disk.
//
// # Collection
//
// Collect walks the config root once, following symbolic links so that
// linked-in directories (for example a shared skills tree) are traversed as
// if they were native. Each file's forward-slash relative path is matched
// against the provider's include patterns and blocklist using doublestar
// glob syntax:
//
//	agent/**/*.md       every markdown file under agent/
//	plugin/**/*.{js,ts} brace alternatives
//	**/.git/**          anything inside a .git directory at any depth
//
// Per-file failures are logged and the file is skipped. A root that cannot
// be read degrades to an empty snapshot. The only error Collect returns is
// context cancellation.
//
// # Apply
//
// Apply is additive: it creates or overwrites the incoming files and never
// deletes anything that is absent from the incoming set.
package collect

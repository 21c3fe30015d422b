// Package output renders stablemem-cli results as tables, JSON or YAML,
// and draws transfer progress for backup and restore.
package output

// Package config reads and writes the stablemem-cli configuration file
// (~/.stablemem/cli.yaml by default).
//
// The file holds named connection profiles. API keys stored in a profile
// are sealed with a per-user key kept next to the file in cli.key, so the
// YAML can be shared or backed up without exposing credentials.
package config

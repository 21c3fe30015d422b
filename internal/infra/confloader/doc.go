// Package confloader loads stablemem configuration with koanf.
//
// Sources, highest priority first:
//
//  1. Overrides passed with WithOverrides, usually from FlagOverrides
//  2. Environment variables with the STABLEMEM_ prefix
//  3. The YAML configuration file
//  4. Defaults already present in the target struct
//
// Watcher reports writes to the configuration file so the server can
// call Load again and apply the settings that may change at runtime.
package confloader

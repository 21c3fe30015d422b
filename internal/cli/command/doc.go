// Package command defines the stablemem-cli commands.
//
// Commands are built on urfave/cli/v2. Every command that talks to a server
// resolves its target through the connection manager, so the --server and
// --api-key flags, STABLEMEM_* environment variables and the current saved
// profile all work the same way. The shell command runs the same commands
// interactively.
package command

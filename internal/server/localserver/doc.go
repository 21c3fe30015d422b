// Package localserver serves the HTTP API on a Unix domain socket for local
// administration.
//
// Requests arriving on the socket skip API key checks. Access is controlled
// by the socket file permissions, which are set to owner-only. The CLI
// reaches it with a unix:// server URL.
package localserver

// Package redisserver provides a Redis protocol compatible server for stablemem.
//
// This package implements the RESP2 subset needed to drive the storage
// engine from any Redis client, using only the Go standard library for
// the wire protocol.
//
// Supported commands:
//   - PING, QUIT, AUTH
//   - PUSHBLOB <blob>
//   - SAVESNAPSHOT, LOADSNAPSHOT
//   - MEMHEADER [TRUSTED]
//   - STREAMBACKUP <offset> <pages>, STREAMRESTORE <offset> <data>
//
// Errors are returned as "ERR <code> <message>" using the domain error codes.
package redisserver

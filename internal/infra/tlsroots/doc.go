// Package tlsroots loads the TLS material used by stablemem listeners and
// clients.
//
// A KeyPair holds the serving certificate and reloads it when the files on
// disk change, so the HTTP and Redis listeners pick up a rotated
// certificate without a restart. A Pool collects trusted CA certificates
// for clients that talk to a server with a private CA.
package tlsroots

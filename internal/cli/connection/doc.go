// Package connection talks to a stablemem server over its HTTP API.
//
// HTTPClient unwraps the server's JSON envelope into typed results and
// turns error envelopes into *APIError. Manager resolves which server and
// credentials a command uses from flags and saved profiles.
package connection

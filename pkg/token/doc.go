// Package token generates API keys and compares them in constant time.
package token

// Package adaptive seals small secrets with an AEAD cipher chosen for the
// host: AES-256-GCM where the CPU accelerates AES, ChaCha20-Poly1305
// elsewhere.
//
// Sealed values are self-describing strings, so a value written on one host
// opens on another regardless of which cipher either would prefer:
//
//	sealed, err := adaptive.Seal(key, []byte("secret"), []byte("profile"))
//	plain, err := adaptive.Open(key, sealed, []byte("profile"))
package adaptive

// Package shutdown coordinates graceful shutdown of stablemem-server.
//
// SIGINT and SIGTERM run the registered hooks in reverse order of
// registration under a timeout. SIGHUP runs reload hooks instead, used to
// re-read the configuration file.
//
// Usage:
//
//	h := shutdown.NewHandler(30 * time.Second)
//	h.OnShutdown(func(ctx context.Context) error { return engine.Close() })
//	h.OnReload(reloadConfig)
//	err := h.Wait()
package shutdown

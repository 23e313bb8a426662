/*
Package tls serves the evaluation API over HTTPS with certificates that are
picked up from disk without a restart.

A Reloader loads the certificate pair once at construction and then, while
Run is active, re-reads it whenever either file's modification time moves.
A pair that fails to load or has expired is logged and the previous one
stays in use.

	reloader, err := tls.NewReloader(&cfg.Server.TLS, logger)
	if err != nil {
		return err
	}
	go reloader.Run(ctx)

	srv := &http.Server{TLSConfig: tls.ServerConfig(&cfg.Server.TLS, reloader)}
	return srv.ServeTLS(ln, "", "")

Only TLS 1.2 and 1.3 are accepted; cipher suites are Go's defaults.
*/
package tls

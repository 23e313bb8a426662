// Package logging builds the process logger on log/slog.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "evaluation completed", "category", "escort")
//	// {"level":"INFO","msg":"evaluation completed","category":"escort","request_id":"req-123"}
//
// Values logged under token, password, passphrase or authorization keys are
// replaced with "***".
package logging

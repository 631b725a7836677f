// Package logging builds the process logger on log/slog.
//
// New returns a *slog.Logger whose handler:
//   - writes JSON or text at the configured level
//   - masks credentials (bearer tokens, DSN passwords, webhook secrets)
//   - adds request_id, product_id, rule_id and actor from the context
//
// Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json", Redact: true})
//	ctx = logging.WithProductID(ctx, "sku-1")
//	logger.InfoContext(ctx, "price applied", "new_price", 9.99)
//
// Components derive their own logger with logger.With("component", "...").
package logging

// Package api serves the read API over stored articles and sources, plus the
// admin endpoint for bulk source upserts.
package api

import (
	"go.uber.org/fx"
)

var Module = fx.Module("api",
	fx.Provide(
		NewServer,
	),
)

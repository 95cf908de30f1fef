package tasks

import (
	"github.com/hikari-danmu/server/pkg/danmaku"
	"github.com/hikari-danmu/server/pkg/ratelimit"
	"github.com/hikari-danmu/server/pkg/scraper"
	"github.com/hikari-danmu/server/pkg/storage"
	"github.com/hikari-danmu/server/pkg/titlerecognition"
)

// Services bundles the dependencies every task body needs, replacing the
// teacher's ad hoc constructor arguments with one explicit
// dependency-injected object — the same bundle crash recovery rebuilds a
// Factory against.
type Services struct {
	Storage  storage.Storage
	Scrapers *scraper.Registry
	Limiter  ratelimit.Limiter
	Titles   *titlerecognition.Manager
	Danmaku  *danmaku.Store
	Manager  *Manager
}

package validate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vitalsd/vitalsd/internal/model"
)

// Ingest contexts whose payloads skip memoization. Migration and bulk import
// replay historic data with near-zero repeat ratio; caching them only churns
// the LRU.
const (
	ContextDefault    = "default"
	ContextMigration  = "migration"
	ContextBulkImport = "bulk_import"
)

const (
	lazyCacheSize = 10000
	lazyCacheTTL  = 60 * time.Second
)

type lazyResult struct {
	err error
}

// LazyValidator memoizes validation outcomes per (variant, fingerprint).
// Wearable exporters resend identical readings across overlapping windows;
// re-validating byte-identical metrics is pure waste.
type LazyValidator struct {
	inner *Validator
	cache *expirable.LRU[string, lazyResult]
}

// NewLazy wraps a Validator with an expirable LRU.
func NewLazy(inner *Validator) *LazyValidator {
	return &LazyValidator{
		inner: inner,
		cache: expirable.NewLRU[string, lazyResult](lazyCacheSize, nil, lazyCacheTTL),
	}
}

// Metric validates with memoization unless the ingest context opts out.
func (l *LazyValidator) Metric(m model.Metric, ingestContext string) error {
	if ingestContext == ContextMigration || ingestContext == ContextBulkImport {
		return l.inner.Metric(m)
	}
	key, ok := fingerprint(m)
	if !ok {
		return l.inner.Metric(m)
	}
	if res, hit := l.cache.Get(key); hit {
		return res.err
	}
	err := l.inner.Metric(m)
	l.cache.Add(key, lazyResult{err: err})
	return err
}

// fingerprint derives a cache key from the variant tag plus the payload's
// canonical JSON encoding.
func fingerprint(m model.Metric) (string, bool) {
	raw, err := json.Marshal(m.Payload)
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(raw)
	return string(m.Type) + ":" + hex.EncodeToString(sum[:8]), true
}

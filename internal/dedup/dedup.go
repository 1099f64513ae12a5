// Package dedup maps raw article URLs to stable identities and rejects
// repeats before any embedding or judgment work is spent on them.
package dedup

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	storegorm "github.com/thebtf/storyline/internal/db/gorm"
)

// trackingParams are query parameters stripped during URL normalization.
// utm_* is handled by prefix.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"dclid":   true,
	"msclkid": true,
	"mc_cid":  true,
	"mc_eid":  true,
	"igshid":  true,
	"spm":     true,
	"ref_src": true,
}

// Reservations is the slice of the cluster store the deduplicator needs.
type Reservations interface {
	ReserveFingerprint(ctx context.Context, hash, url string) error
}

// Result of a check-and-reserve call.
type Result struct {
	ArticleID     string
	Hash          string
	NormalizedURL string
	Duplicate     bool
}

// Deduplicator reserves URL fingerprints against the cluster store.
type Deduplicator struct {
	store Reservations
}

// New creates a Deduplicator.
func New(store Reservations) *Deduplicator {
	return &Deduplicator{store: store}
}

// CheckAndReserve normalizes the URL, computes its fingerprint and
// atomically reserves it. A Result with Duplicate=true means the article
// was already seen (or another worker reserved it first) and the pipeline
// stops here. Nothing but the fingerprint is persisted.
func (d *Deduplicator) CheckAndReserve(ctx context.Context, rawURL string) (Result, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("normalize url: %w", err)
	}

	res := Result{
		ArticleID:     ArticleID(normalized),
		Hash:          Fingerprint(normalized),
		NormalizedURL: normalized,
	}

	err = d.store.ReserveFingerprint(ctx, res.Hash, normalized)
	if errors.Is(err, storegorm.ErrDuplicate) {
		log.Debug().Str("url", normalized).Msg("Duplicate article rejected")
		res.Duplicate = true
		return res, nil
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// NormalizeURL canonicalizes an article URL: lower-cased scheme and host,
// default ports and fragments dropped, tracking parameters stripped,
// remaining query parameters sorted for stability.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if trackingParams[key] || strings.HasPrefix(key, "utm_") {
				q.Del(key)
			}
		}
		u.RawQuery = encodeSorted(q)
	}

	return u.String(), nil
}

// encodeSorted is url.Values.Encode with deterministic key order.
func encodeSorted(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}

// Fingerprint returns the hex BLAKE2b-256 digest of a normalized URL.
func Fingerprint(normalized string) string {
	sum := blake2b.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ArticleID derives the stable article identifier from a normalized URL
// (UUIDv5 in the URL namespace).
func ArticleID(normalized string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(normalized)).String()
}

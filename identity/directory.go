// Package identity resolves counterparties known to the local company.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-rfp/core"
)

const companyCacheKeyPrefix = "go-rfp::counterparty::v1"

var ErrCompanyNotFound = errors.New("identity: company not found")

type CompanyNotFoundError struct {
	StaticID string
}

func (e *CompanyNotFoundError) Error() string {
	if e == nil || e.StaticID == "" {
		return ErrCompanyNotFound.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCompanyNotFound.Error(), e.StaticID)
}

func (e *CompanyNotFoundError) Unwrap() error {
	return ErrCompanyNotFound
}

// ToServiceError reports an unknown company as a permanent addressing failure.
func (e *CompanyNotFoundError) ToServiceError() *goerrors.Error {
	staticID := ""
	if e != nil {
		staticID = e.StaticID
	}
	return goerrors.Wrap(e, goerrors.CategoryBadInput, "identity: unknown counterparty").
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(core.ErrorAddressingInvalid).
		WithMetadata(map[string]any{"static_id": staticID})
}

func NotFound(staticID string) error {
	return (&CompanyNotFoundError{StaticID: staticID}).ToServiceError()
}

// StaticDirectory is an in-memory set of counterparties.
type StaticDirectory struct {
	mu        sync.RWMutex
	companies map[string]core.Counterparty
}

func NewStaticDirectory(companies ...core.Counterparty) *StaticDirectory {
	directory := &StaticDirectory{companies: map[string]core.Counterparty{}}
	for _, company := range companies {
		directory.Add(company)
	}
	return directory
}

// NewStaticDirectoryFromIDs builds a directory from bare static ids.
func NewStaticDirectoryFromIDs(ids ...string) *StaticDirectory {
	directory := NewStaticDirectory()
	for _, id := range ids {
		directory.Add(core.Counterparty{StaticID: id})
	}
	return directory
}

func (d *StaticDirectory) Add(company core.Counterparty) {
	staticID := strings.TrimSpace(company.StaticID)
	if staticID == "" {
		return
	}
	company.StaticID = staticID
	company.Metadata = copyMetadata(company.Metadata)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.companies[staticID] = company
}

func (d *StaticDirectory) Lookup(_ context.Context, staticID string) (core.Counterparty, error) {
	if d == nil {
		return core.Counterparty{}, fmt.Errorf("identity: directory is not configured")
	}
	staticID = strings.TrimSpace(staticID)
	d.mu.RLock()
	defer d.mu.RUnlock()
	company, ok := d.companies[staticID]
	if !ok {
		return core.Counterparty{}, NotFound(staticID)
	}
	company.Metadata = copyMetadata(company.Metadata)
	return company, nil
}

func (d *StaticDirectory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.companies))
	for id := range d.companies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CachedDirectory reads through a go-repository-cache service. Failed lookups are not cached.
type CachedDirectory struct {
	base  core.Directory
	cache repositorycache.CacheService
}

func NewCachedDirectory(base core.Directory, cacheService repositorycache.CacheService) (*CachedDirectory, error) {
	if base == nil {
		return nil, fmt.Errorf("identity: base directory is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("identity: directory cache service is required")
	}
	return &CachedDirectory{base: base, cache: cacheService}, nil
}

func CompanyCacheKey(staticID string) string {
	return companyCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(staticID))
}

func (d *CachedDirectory) Lookup(ctx context.Context, staticID string) (core.Counterparty, error) {
	if d == nil || d.base == nil || d.cache == nil {
		return core.Counterparty{}, fmt.Errorf("identity: cached directory is not configured")
	}
	staticID = strings.TrimSpace(staticID)
	if staticID == "" {
		return core.Counterparty{}, NotFound(staticID)
	}
	company, err := repositorycache.GetOrFetch(ctx, d.cache, CompanyCacheKey(staticID), func(ctx context.Context) (core.Counterparty, error) {
		return d.base.Lookup(ctx, staticID)
	})
	if err != nil {
		return core.Counterparty{}, err
	}
	company.Metadata = copyMetadata(company.Metadata)
	return company, nil
}

// Invalidate drops a cached entry after the underlying directory changes.
func (d *CachedDirectory) Invalidate(ctx context.Context, staticID string) error {
	if d == nil || d.cache == nil {
		return fmt.Errorf("identity: cached directory is not configured")
	}
	return d.cache.Delete(ctx, CompanyCacheKey(staticID))
}

func copyMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

var (
	_ core.Directory = (*StaticDirectory)(nil)
	_ core.Directory = (*CachedDirectory)(nil)
)

package services

import (
	"context"

	"github.com/dmitrijs2005/idkeeper/internal/client/repositories/kv"
)

const stagedPrefix = "staged:"

// StagingMarkers remember which site an address was staged on behalf of,
// so that an interrupted registration can be resumed.
type StagingMarkers struct {
	repo kv.Repository
}

func NewStagingMarkers(repo kv.Repository) *StagingMarkers {
	return &StagingMarkers{repo: repo}
}

func (m *StagingMarkers) MarkStaged(ctx context.Context, address, site string) error {
	return m.repo.Set(ctx, stagedPrefix+address, []byte(site))
}

// Staged returns the site address was staged for, and whether there is one.
func (m *StagingMarkers) Staged(ctx context.Context, address string) (string, bool, error) {
	v, err := m.repo.Get(ctx, stagedPrefix+address)
	if err != nil || v == nil {
		return "", false, err
	}
	return string(v), true, nil
}

func (m *StagingMarkers) ClearStaged(ctx context.Context, address string) error {
	return m.repo.Delete(ctx, stagedPrefix+address)
}

// Package fixture provides a deterministic in-memory metasource.Source.
package fixture

import (
	"context"
	"fmt"

	"github.com/hikari-danmu/server/pkg/metasource"
)

type Source struct {
	SourceName string
	Candidates []metasource.Candidate
	Details    map[string]metasource.Details
	Err        error
}

func (s *Source) Name() string { return s.SourceName }

func (s *Source) Search(_ context.Context, _ string, _ int) ([]metasource.Candidate, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Candidates, nil
}

func (s *Source) GetDetails(_ context.Context, foreignID string) (metasource.Details, error) {
	if s.Err != nil {
		return metasource.Details{}, s.Err
	}
	d, ok := s.Details[foreignID]
	if !ok {
		return metasource.Details{}, fmt.Errorf("fixture: no details for id %q", foreignID)
	}
	return d, nil
}

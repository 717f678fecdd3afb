package supervisor

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DeployGroup starts every member of a deployment group, tolerating
// individual failures and returning a per-agent error map — mirroring the
// teacher's pattern of collecting per-item results without aborting the
// whole batch.
func (s *Supervisor) DeployGroup(ctx context.Context, groupID string) (map[string]error, error) {
	group, err := s.cfg.DeploymentRegistry.Get(groupID)
	if err != nil {
		return nil, err
	}

	results := make(map[string]error, len(group.Members))
	var mu sync.Mutex
	var g errgroup.Group
	for _, member := range group.Members {
		member := member
		g.Go(func() error {
			req := StartRequest{
				Agent:             member.Agent,
				Provider:          member.Provider,
				Model:             member.Model,
				SystemPrompt:      member.SystemPrompt,
				DeploymentGroupID: groupID,
			}
			req.HandlerKind = group.DefaultHandler
			if member.HandlerKind != nil {
				req.HandlerKind = *member.HandlerKind
			}
			if req.Provider == "" {
				req.Provider = group.DefaultProvider
			}
			if req.Model == "" {
				req.Model = group.DefaultModel
			}
			err := s.Start(ctx, req)
			mu.Lock()
			results[member.Agent] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// StopGroup stops every member of a deployment group, tolerating individual
// failures and returning a per-agent error map.
func (s *Supervisor) StopGroup(groupID string) (map[string]error, error) {
	group, err := s.cfg.DeploymentRegistry.Get(groupID)
	if err != nil {
		return nil, err
	}

	results := make(map[string]error, len(group.Members))
	var mu sync.Mutex
	var g errgroup.Group
	for _, member := range group.Members {
		member := member
		g.Go(func() error {
			err := s.Stop(member.Agent)
			mu.Lock()
			results[member.Agent] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

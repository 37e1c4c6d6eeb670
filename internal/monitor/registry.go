// Package monitor is the command surface: register, unregister and list
// the services of a group.
package monitor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/repo"
)

type AddRequest struct {
	Name   string
	Target string
	Port   *int
	Kind   domain.TransportKind
}

// Registry serializes its operations per group with the same locks the
// evaluation engine uses when it persists a cycle.
type Registry struct {
	repo  repo.Repository
	locks *repo.GroupLocks
	log   *zap.Logger
}

func NewRegistry(r repo.Repository, locks *repo.GroupLocks, log *zap.Logger) *Registry {
	if locks == nil {
		locks = repo.NewGroupLocks()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{repo: r, locks: locks, log: log}
}

// Add validates req and appends a new service in the unknown state.
// A name already used in the group, in any letter case, is rejected with
// domain.ErrDuplicateName.
func (r *Registry) Add(ctx context.Context, group string, req AddRequest) (domain.Service, error) {
	if err := repo.ValidateGroupID(group); err != nil {
		return domain.Service{}, err
	}
	kind := req.Kind
	if kind == "" {
		kind = domain.KindHTTP
	}
	svc, err := domain.NewService(req.Name, req.Target, req.Port, kind)
	if err != nil {
		return domain.Service{}, err
	}

	unlock := r.locks.Lock(group)
	defer unlock()

	recs, err := r.repo.FetchAll(ctx, group)
	if err != nil {
		return domain.Service{}, fmt.Errorf("group %s: %w", group, err)
	}
	for _, rec := range recs {
		if domain.SameName(rec.Name, svc.Name) {
			return domain.Service{}, fmt.Errorf("%w: %q", domain.ErrDuplicateName, svc.Name)
		}
	}
	if err := r.repo.Add(ctx, group, svc.ToRecord()); err != nil {
		return domain.Service{}, fmt.Errorf("group %s: add: %w", group, err)
	}
	r.log.Info("service_added", zap.String("group", group), zap.String("service", svc.Name),
		zap.String("kind", string(svc.Kind)))
	return svc, nil
}

// Remove is idempotent; removing an unknown name succeeds.
func (r *Registry) Remove(ctx context.Context, group, name string) error {
	if err := repo.ValidateGroupID(group); err != nil {
		return err
	}
	unlock := r.locks.Lock(group)
	defer unlock()
	if err := r.repo.Remove(ctx, group, name); err != nil {
		return fmt.Errorf("group %s: remove: %w", group, err)
	}
	r.log.Info("service_removed", zap.String("group", group), zap.String("service", name))
	return nil
}

// List returns every service of the group, disabled ones included.
func (r *Registry) List(ctx context.Context, group string) ([]domain.Service, error) {
	if err := repo.ValidateGroupID(group); err != nil {
		return nil, err
	}
	unlock := r.locks.Lock(group)
	recs, err := r.repo.FetchAll(ctx, group)
	unlock()
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", group, err)
	}
	return domain.FromRecords(recs)
}

package memory

import (
	"context"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

type applicationRepo struct{ t *tx }

func (r applicationRepo) Get(_ context.Context, kind types.ApplicationKind, id string) (store.ApplicationRecord, error) {
	a, ok := r.t.st.applications.get(id)
	if !ok || a.Kind != kind {
		return store.ApplicationRecord{}, store.ErrNotFound
	}
	return a, nil
}

func (r applicationRepo) List(_ context.Context, kind types.ApplicationKind, status types.ApplicationStatus) ([]store.ApplicationRecord, error) {
	return newestFirst(r.t.st.applications.list(func(a store.ApplicationRecord) bool {
		return a.Kind == kind && (status == "" || a.Status == status)
	})), nil
}

func (r applicationRepo) Insert(_ context.Context, a store.ApplicationRecord) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.applications.get(a.ID); ok {
		return store.ErrConflict
	}
	a.Payload = append([]byte(nil), a.Payload...)
	r.t.st.applications.put(a.ID, a)
	return nil
}

func (r applicationRepo) Update(_ context.Context, a store.ApplicationRecord) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.applications.get(a.ID); !ok {
		return store.ErrNotFound
	}
	a.Payload = append([]byte(nil), a.Payload...)
	r.t.st.applications.put(a.ID, a)
	return nil
}

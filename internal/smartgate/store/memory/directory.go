package memory

import (
	"context"
	"strings"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

type userRepo struct{ t *tx }

func (r userRepo) Get(_ context.Context, id string) (types.User, error) {
	u, ok := r.t.st.users.get(id)
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r userRepo) FindByLogin(_ context.Context, identifier string) (types.User, error) {
	if u, ok := r.t.st.users.get(identifier); ok {
		return u, nil
	}
	if u, ok := r.t.st.users.find(func(u types.User) bool { return strings.EqualFold(u.Email, identifier) }); ok {
		return u, nil
	}
	if u, ok := r.t.st.users.find(func(u types.User) bool { return strings.EqualFold(u.Name, identifier) }); ok {
		return u, nil
	}
	return types.User{}, store.ErrNotFound
}

func (r userRepo) List(context.Context) ([]types.User, error) {
	return r.t.st.users.list(nil), nil
}

func (r userRepo) emailTaken(u types.User) bool {
	_, taken := r.t.st.users.find(func(o types.User) bool {
		return o.ID != u.ID && u.Email != "" && strings.EqualFold(o.Email, u.Email)
	})
	return taken
}

func (r userRepo) Insert(_ context.Context, u types.User) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.users.get(u.ID); ok || r.emailTaken(u) {
		return store.ErrConflict
	}
	r.t.st.users.put(u.ID, u)
	return nil
}

func (r userRepo) Update(_ context.Context, u types.User) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.users.get(u.ID); !ok {
		return store.ErrNotFound
	}
	if r.emailTaken(u) {
		return store.ErrConflict
	}
	r.t.st.users.put(u.ID, u)
	return nil
}

func (r userRepo) Delete(_ context.Context, id string) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if !r.t.st.users.del(id) {
		return store.ErrNotFound
	}
	for _, v := range r.t.st.vehicles.list(func(v types.Vehicle) bool { return v.UserID == id }) {
		r.t.st.vehicles.del(v.ID)
	}
	for _, p := range r.t.st.passes.list(func(p types.Pass) bool { return p.UserID == id }) {
		r.t.st.passes.del(p.ID)
	}
	return nil
}

type vehicleRepo struct{ t *tx }

func (r vehicleRepo) Get(_ context.Context, id string) (types.Vehicle, error) {
	v, ok := r.t.st.vehicles.get(id)
	if !ok {
		return types.Vehicle{}, store.ErrNotFound
	}
	return v, nil
}

func (r vehicleRepo) GetByPlate(_ context.Context, plate string) (types.Vehicle, error) {
	v, ok := r.t.st.vehicles.find(func(v types.Vehicle) bool { return v.PlateText == plate })
	if !ok {
		return types.Vehicle{}, store.ErrNotFound
	}
	return v, nil
}

func (r vehicleRepo) ListByUser(_ context.Context, userID string) ([]types.Vehicle, error) {
	return r.t.st.vehicles.list(func(v types.Vehicle) bool { return v.UserID == userID }), nil
}

func (r vehicleRepo) List(context.Context) ([]types.Vehicle, error) {
	return r.t.st.vehicles.list(nil), nil
}

func (r vehicleRepo) plateTaken(v types.Vehicle) bool {
	_, taken := r.t.st.vehicles.find(func(o types.Vehicle) bool {
		return o.ID != v.ID && o.PlateText == v.PlateText
	})
	return taken
}

func (r vehicleRepo) Insert(_ context.Context, v types.Vehicle) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.users.get(v.UserID); !ok {
		return store.ErrNotFound
	}
	if _, ok := r.t.st.vehicles.get(v.ID); ok || r.plateTaken(v) {
		return store.ErrConflict
	}
	r.t.st.vehicles.put(v.ID, v)
	return nil
}

func (r vehicleRepo) Update(_ context.Context, v types.Vehicle) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.vehicles.get(v.ID); !ok {
		return store.ErrNotFound
	}
	if _, ok := r.t.st.users.get(v.UserID); !ok {
		return store.ErrNotFound
	}
	if r.plateTaken(v) {
		return store.ErrConflict
	}
	r.t.st.vehicles.put(v.ID, v)
	return nil
}

func (r vehicleRepo) Delete(_ context.Context, id string) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if !r.t.st.vehicles.del(id) {
		return store.ErrNotFound
	}
	return nil
}

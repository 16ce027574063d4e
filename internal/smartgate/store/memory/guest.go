package memory

import (
	"context"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

type sessionRepo struct{ t *tx }

func (r sessionRepo) Get(_ context.Context, id string) (types.GuestSession, error) {
	s, ok := r.t.st.sessions.get(id)
	if !ok {
		return types.GuestSession{}, store.ErrNotFound
	}
	return s, nil
}

func (r sessionRepo) FindOpenByPlate(_ context.Context, plate string) (types.GuestSession, error) {
	s, ok := r.t.st.sessions.find(func(s types.GuestSession) bool {
		return s.PlateText == plate && s.Status == types.GuestOpen
	})
	if !ok {
		return types.GuestSession{}, store.ErrNotFound
	}
	return s, nil
}

func (r sessionRepo) FindLatestByPlate(_ context.Context, plate string) (types.GuestSession, error) {
	ss := r.t.st.sessions.list(func(s types.GuestSession) bool { return s.PlateText == plate })
	if len(ss) == 0 {
		return types.GuestSession{}, store.ErrNotFound
	}
	return ss[len(ss)-1], nil
}

func (r sessionRepo) List(context.Context) ([]types.GuestSession, error) {
	return newestFirst(r.t.st.sessions.list(nil)), nil
}

func (r sessionRepo) Insert(ctx context.Context, s types.GuestSession) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.sessions.get(s.ID); ok {
		return store.ErrConflict
	}
	if s.Status == types.GuestOpen {
		if _, err := r.FindOpenByPlate(ctx, s.PlateText); err == nil {
			return store.ErrConflict
		}
	}
	r.t.st.sessions.put(s.ID, s)
	return nil
}

func (r sessionRepo) Update(_ context.Context, s types.GuestSession) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if _, ok := r.t.st.sessions.get(s.ID); !ok {
		return store.ErrNotFound
	}
	r.t.st.sessions.put(s.ID, s)
	return nil
}

type rateRepo struct{ t *tx }

func (r rateRepo) Get(context.Context) (types.GuestRate, error) {
	if r.t.st.rate == nil {
		return types.GuestRate{}, store.ErrNotFound
	}
	return *r.t.st.rate, nil
}

func (r rateRepo) Put(_ context.Context, rate types.GuestRate) error {
	if err := r.t.write(); err != nil {
		return err
	}
	r.t.st.rate = &rate
	return nil
}

type paymentRepo struct{ t *tx }

func (r paymentRepo) Get(_ context.Context, id string) (types.Payment, error) {
	p, ok := r.t.st.payments.get(id)
	if !ok {
		return types.Payment{}, store.ErrNotFound
	}
	return p, nil
}

func (r paymentRepo) Insert(_ context.Context, p types.Payment) error {
	if err := r.t.write(); err != nil {
		return err
	}
	if (p.SessionID == "") == (p.PassID == "") {
		return store.ErrConflict
	}
	if _, ok := r.t.st.payments.get(p.ID); ok {
		return store.ErrConflict
	}
	r.t.st.payments.put(p.ID, p)
	return nil
}

func (r paymentRepo) ListBySession(_ context.Context, sessionID string) ([]types.Payment, error) {
	return r.t.st.payments.list(func(p types.Payment) bool { return p.SessionID == sessionID }), nil
}

func (r paymentRepo) ListByPass(_ context.Context, passID string) ([]types.Payment, error) {
	return r.t.st.payments.list(func(p types.Payment) bool { return p.PassID == passID }), nil
}

func (r paymentRepo) List(context.Context) ([]types.Payment, error) {
	return r.t.st.payments.list(nil), nil
}

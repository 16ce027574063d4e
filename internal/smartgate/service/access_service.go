package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/smartgate/server/internal/cache"
	"github.com/smartgate/server/internal/events"
	"github.com/smartgate/server/internal/recognition"
	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

// recentEventsCap bounds the cached recent-events list.
const recentEventsCap = 100

type AccessPolicy struct {
	// MinConfidence is the recognition threshold below which every
	// decision is DENY low_confidence.
	MinConfidence float64
}

// AccessService turns a plate sighting at a gate into an ALLOW, DENY or
// GUEST decision and records exactly one audit event for it.
type AccessService struct {
	store      store.Store
	policy     AccessPolicy
	recognizer recognition.Recognizer
	cache      cache.Cache
	publisher  events.Publisher
	opts       Options
}

// NewAccessService wires the decision engine. recognizer, c and pub may be
// nil; without a recognizer image-only requests are recorded as UNKNOWN.
func NewAccessService(st store.Store, policy AccessPolicy, recognizer recognition.Recognizer, c cache.Cache, pub events.Publisher, opts Options) *AccessService {
	return &AccessService{
		store:      st,
		policy:     policy,
		recognizer: recognizer,
		cache:      c,
		publisher:  pub,
		opts:       opts.withDefaults(),
	}
}

// Decide evaluates one sighting. Business outcomes, including unknown
// gates and plates, are returned as decisions; only infrastructure
// failures surface as errors, and then nothing was recorded.
func (s *AccessService) Decide(ctx context.Context, req types.AccessRequest) (types.AccessResult, error) {
	gateRef := strings.TrimSpace(req.Gate)
	if gateRef == "" {
		return types.AccessResult{}, ErrGateRequired
	}
	if math.IsNaN(req.Confidence) || req.Confidence < 0 || req.Confidence > 1 {
		return types.AccessResult{}, ErrInvalidConfidence
	}
	var overrideUser string
	if req.Override != nil {
		overrideUser = strings.TrimSpace(req.Override.UserID)
		if overrideUser == "" {
			return types.AccessResult{}, ErrInvalidInput.With("override.user_id is required")
		}
	}

	plate := types.NormalizePlate(req.PlateText)
	confidence := req.Confidence
	if plate == "" {
		switch {
		case strings.TrimSpace(req.ImageBase64) != "":
			plate, confidence = s.recognize(ctx, gateRef, req.ImageBase64)
		case overrideUser != "":
			// Manual identification; recognition is not involved.
			plate = types.UnknownPlate
			if confidence == 0 {
				confidence = 1
			}
		default:
			return types.AccessResult{}, ErrPlateRequired
		}
	}

	var (
		res   types.AccessResult
		guest *types.GuestSession
	)
	if s.mayOpenGuest(plate) {
		unlock := s.opts.Locks.Plate(plate)
		defer unlock()
	}
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.opts.now()
		dec, ev, sess, err := s.decideTx(ctx, tx, gateRef, plate, confidence, overrideUser, now)
		if err != nil {
			return err
		}
		ev.ID = types.NewID("EVT")
		ev.RequestedAt = req.RequestedAt
		ev.Timestamp = now
		if err := tx.Events().Append(ctx, ev); err != nil {
			return fmt.Errorf("record access event: %w", err)
		}
		res = types.AccessResult{Decision: dec, Event: ev}
		guest = sess
		return nil
	})
	if err != nil {
		return types.AccessResult{}, fmt.Errorf("decide %s at %s: %w", plate, gateRef, err)
	}

	s.afterCommit(ctx, res, guest)
	return res, nil
}

// decideTx resolves the gate and identity, applies the policy and the
// GUEST and venue side effects. The caller appends the event.
func (s *AccessService) decideTx(ctx context.Context, tx store.Tx, gateRef, plate string, confidence float64, overrideUser string, now time.Time) (types.AccessDecision, types.AccessEvent, *types.GuestSession, error) {
	ev := types.AccessEvent{PlateText: plate, Confidence: confidence, GateSlug: Slugify(gateRef)}
	deny := func(reason, detail string) (types.AccessDecision, types.AccessEvent, *types.GuestSession, error) {
		d := types.AccessDecision{Decision: types.DecisionDeny, Reason: reason, Detail: detail, Role: ev.Role, UserID: ev.UserID}
		ev.Decision, ev.Reason, ev.Detail = d.Decision, d.Reason, d.Detail
		return d, ev, nil, nil
	}

	gate, err := resolveGateTx(ctx, tx, gateRef)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return deny(types.ReasonUnknownGate, "")
	case err != nil:
		return types.AccessDecision{}, types.AccessEvent{}, nil, err
	}
	ev.GateSlug, ev.GateID = gate.Slug, gate.ID
	if err := markSeenTx(ctx, tx, &gate, now); err != nil {
		return types.AccessDecision{}, types.AccessEvent{}, nil, err
	}
	if !gate.Active {
		return deny(types.ReasonGateInactive, "")
	}

	user, found, err := s.identify(ctx, tx, plate, overrideUser)
	if err != nil {
		return types.AccessDecision{}, types.AccessEvent{}, nil, err
	}
	ev.Role = types.RoleGuest
	if found {
		ev.UserID, ev.Role = user.ID, user.Role
	}

	if confidence < s.policy.MinConfidence {
		return deny(types.ReasonLowConfidence, "")
	}

	var dec types.AccessDecision
	switch {
	case !found && (gate.MinRole != types.RoleGuest || plate == types.UnknownPlate):
		return deny(types.ReasonUnknownPlate, "")
	case !found:
		dec = types.AccessDecision{Decision: types.DecisionGuest, Reason: types.ReasonGuestSession, Role: types.RoleGuest}
	default:
		passes, err := tx.Passes().ListByUser(ctx, user.ID)
		if err != nil {
			return types.AccessDecision{}, types.AccessEvent{}, nil, err
		}
		active, detail := activePass(passes, now)
		switch {
		case active == nil && gate.MinRole == types.RoleGuest:
			dec = types.AccessDecision{Decision: types.DecisionGuest, Reason: types.ReasonGuestSession, Detail: detail, Role: user.Role, UserID: user.ID}
		case active == nil:
			return deny(types.ReasonNoActivePass, detail)
		case active.Role.AtLeast(gate.MinRole):
			ev.Role = active.Role
			dec = types.AccessDecision{Decision: types.DecisionAllow, Reason: types.ReasonRoleSatisfied, Role: active.Role, UserID: user.ID, PassID: active.ID}
		default:
			ev.Role = active.Role
			d, e, _, _ := deny(types.ReasonInsufficientRole, "")
			d.PassID = active.ID
			return d, e, nil, nil
		}
	}

	var sess *types.GuestSession
	if dec.Decision == types.DecisionGuest && s.mayOpenGuest(plate) {
		opened, err := openGuestTx(ctx, tx, plate, now)
		if err != nil {
			return types.AccessDecision{}, types.AccessEvent{}, nil, fmt.Errorf("open guest session: %w", err)
		}
		sess = &opened
		dec.GuestSessionID = opened.ID
	}

	if gate.VenueID != "" {
		v, note, err := applyVenueTx(ctx, tx, gate.VenueID, gate.Direction, now)
		switch {
		case errors.Is(err, ErrVenueNotFound):
			s.opts.Logger.Warn("gate linked to missing venue", "gate", gate.ID, "venue", gate.VenueID)
		case err != nil:
			return types.AccessDecision{}, types.AccessEvent{}, nil, err
		default:
			dec.VenueID, dec.VenueNote = v.ID, note
		}
	}

	ev.Decision, ev.Reason, ev.Detail = dec.Decision, dec.Reason, dec.Detail
	ev.GuestSessionID, ev.VenueID, ev.VenueNote = dec.GuestSessionID, dec.VenueID, dec.VenueNote
	return dec, ev, sess, nil
}

// identify resolves the override user or the plate's owner. A missing
// identity is reported through found, not as an error.
func (s *AccessService) identify(ctx context.Context, tx store.Tx, plate, overrideUser string) (types.User, bool, error) {
	userID := overrideUser
	if userID == "" {
		v, err := tx.Vehicles().GetByPlate(ctx, plate)
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, false, nil
		}
		if err != nil {
			return types.User{}, false, err
		}
		userID = v.UserID
	}
	u, err := tx.Users().Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, false, nil
	}
	return u, err == nil, err
}

// activePass picks the pass granting access at now. When none does, detail
// explains the state of the pass that runs latest.
func activePass(passes []types.Pass, now time.Time) (*types.Pass, string) {
	for i := range passes {
		if passes[i].ActiveAt(now) {
			return &passes[i], ""
		}
	}
	latest, ok := latestPass(passes)
	if !ok {
		return nil, types.DetailNoPass
	}
	switch {
	case !latest.Paid:
		return nil, types.DetailPassUnpaid
	case now.Before(latest.ValidFrom):
		return nil, types.DetailPassNotStarted
	default:
		return nil, types.DetailPassExpired
	}
}

// latestPass returns the pass with the greatest ValidTo. Ties go to the
// newer pass; passes are listed newest first.
func latestPass(passes []types.Pass) (types.Pass, bool) {
	if len(passes) == 0 {
		return types.Pass{}, false
	}
	best := passes[0]
	for _, p := range passes[1:] {
		if p.ValidTo.After(best.ValidTo) {
			best = p
		}
	}
	return best, true
}

// mayOpenGuest reports whether the decision could open a guest session for
// plate and therefore needs the plate lock.
func (s *AccessService) mayOpenGuest(plate string) bool {
	return plate != "" && plate != types.UnknownPlate
}

func (s *AccessService) recognize(ctx context.Context, gate, image string) (string, float64) {
	if s.recognizer == nil {
		s.opts.Logger.Warn("image supplied but no recognizer configured", "gate", gate)
		return types.UnknownPlate, 0
	}
	det, err := s.recognizer.Recognize(ctx, image)
	if err != nil {
		s.opts.Logger.Warn("plate recognition failed, marking UNKNOWN", "gate", gate, "err", err)
		return types.UnknownPlate, 0
	}
	plate := types.NormalizePlate(det.PlateText)
	if plate == "" {
		return types.UnknownPlate, 0
	}
	return plate, det.Confidence
}

// afterCommit refreshes read models and fans the event out. Failures are
// logged only; the decision is already durable.
func (s *AccessService) afterCommit(ctx context.Context, res types.AccessResult, guest *types.GuestSession) {
	log := s.opts.Logger.With("event", res.Event.ID, "gate", res.Event.GateSlug)
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cache.InferenceKey(res.Event.GateSlug), res.Decision, s.opts.CacheTTL); err != nil {
			log.Warn("cache latest decision failed", "err", err)
		}
		if err := s.cache.PushJSON(ctx, cache.AccessEventsKey(), res.Event, recentEventsCap); err != nil {
			log.Warn("cache recent event failed", "err", err)
		}
		if guest != nil {
			rememberGuest(ctx, s.cache, *guest, s.opts)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, res.Event); err != nil {
			log.Warn("publish access event failed", "err", err)
		}
	}
	log.Info("access decided",
		"plate", res.Event.PlateText,
		"decision", res.Decision.Decision,
		"reason", res.Decision.Reason,
		"confidence", res.Event.Confidence,
	)
}

// Recent returns the newest access events, preferring the cached list.
func (s *AccessService) Recent(ctx context.Context, limit int) ([]types.AccessEvent, error) {
	if limit <= 0 || limit > recentEventsCap {
		limit = 20
	}
	if s.cache != nil {
		var out []types.AccessEvent
		err := s.cache.ListJSON(ctx, cache.AccessEventsKey(), limit, func(b []byte) error {
			var ev types.AccessEvent
			if err := json.Unmarshal(b, &ev); err != nil {
				return err
			}
			out = append(out, ev)
			return nil
		})
		if err == nil && len(out) > 0 {
			return out, nil
		}
		if err != nil {
			s.opts.Logger.Warn("read cached events failed, using store", "err", err)
		}
	}
	var out []types.AccessEvent
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Events().Recent(ctx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recent access events: %w", err)
	}
	return out, nil
}

// LatestDecision returns the cached last decision taken at a gate.
func (s *AccessService) LatestDecision(ctx context.Context, gateSlug string) (types.AccessDecision, bool, error) {
	if s.cache == nil {
		return types.AccessDecision{}, false, nil
	}
	var d types.AccessDecision
	ok, err := s.cache.GetJSON(ctx, cache.InferenceKey(Slugify(gateSlug)), &d)
	return d, ok, err
}

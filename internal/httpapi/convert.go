package httpapi

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/smartgate/server/internal/smartgate/types"
)

// ── Access ───────────────────────────────────────────────────────────────────

// accessRequestFromStruct reads the flat protobuf Struct sent by gate
// cameras: gate, plate_text, confidence, image_base64, override_user_id and
// requested_at (RFC 3339).
func accessRequestFromStruct(s *structpb.Struct) types.AccessRequest {
	f := s.GetFields()
	req := types.AccessRequest{
		Gate:        f["gate"].GetStringValue(),
		PlateText:   f["plate_text"].GetStringValue(),
		Confidence:  f["confidence"].GetNumberValue(),
		ImageBase64: f["image_base64"].GetStringValue(),
	}

	if id := f["override_user_id"].GetStringValue(); id != "" {
		req.Override = &types.Override{UserID: id}
	}
	if ts, err := time.Parse(time.RFC3339, f["requested_at"].GetStringValue()); err == nil {
		ts = ts.UTC()
		req.RequestedAt = &ts
	}

	return req
}

func accessResultToStruct(r types.AccessResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"decision":         string(r.Decision.Decision),
		"reason":           r.Decision.Reason,
		"detail":           r.Decision.Detail,
		"role":             string(r.Decision.Role),
		"user_id":          r.Decision.UserID,
		"pass_id":          r.Decision.PassID,
		"guest_session_id": r.Decision.GuestSessionID,
		"venue_note":       r.Decision.VenueNote,
		"event_id":         r.Event.ID,
		"plate_text":       r.Event.PlateText,
		"confidence":       r.Event.Confidence,
		"timestamp":        r.Event.Timestamp.Format(time.RFC3339),
	})
}

package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"google.golang.org/protobuf/proto"
)

// protoMediaType is what decisions are answered with when the camera spoke
// protobuf.
const protoMediaType = "application/x-protobuf"

// maxCaptureBytes bounds a protobuf capture. Cameras send the plate reading
// here, never the frame.
const maxCaptureBytes = 4096

var errCaptureTooLarge = errors.New("protobuf capture too large")

// isProtobuf reports whether the capture body is a protobuf message.
// Parameters such as charset are ignored.
func isProtobuf(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	switch mt {
	case protoMediaType, "application/protobuf", "application/octet-stream":
		return true
	}
	return false
}

// readProto decodes the capture body into msg. Bodies over maxCaptureBytes
// are refused rather than truncated.
func readProto(r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCaptureBytes+1))
	if err != nil {
		return fmt.Errorf("read capture: %w", err)
	}
	if len(body) > maxCaptureBytes {
		return errCaptureTooLarge
	}
	return proto.Unmarshal(body, msg)
}

func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode_failed", "could not encode decision")
		return
	}
	w.Header().Set("Content-Type", protoMediaType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

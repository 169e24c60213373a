// Package rtc knows the shape of WebRTC negotiation payloads. The relay never
// applies them; it only refuses data no browser could use.
package rtc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/relay/internal/config"
	"github.com/dkeye/relay/internal/domain"
	"github.com/pion/webrtc/v4"
)

var ErrInvalidPayload = errors.New("invalid signaling payload")

// Validator checks offer/answer/ICE payloads before they are relayed.
// With ParseSDP set, session descriptions are also parsed as SDP.
type Validator struct {
	ParseSDP bool
}

func (v Validator) Validate(kind domain.SignalKind, data json.RawMessage) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: empty data", ErrInvalidPayload)
	}
	switch kind {
	case domain.SignalOffer:
		return v.validateDescription(webrtc.SDPTypeOffer, data)
	case domain.SignalAnswer:
		return v.validateDescription(webrtc.SDPTypeAnswer, data)
	case domain.SignalICECandidate:
		return validateCandidate(data)
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, kind)
}

func (v Validator) validateDescription(want webrtc.SDPType, data json.RawMessage) error {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(data, &sd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if sd.Type != want {
		return fmt.Errorf("%w: description type %s, want %s", ErrInvalidPayload, sd.Type, want)
	}
	if sd.SDP == "" {
		return fmt.Errorf("%w: empty sdp", ErrInvalidPayload)
	}
	if v.ParseSDP {
		if _, err := sd.Unmarshal(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}
	return nil
}

// validateCandidate accepts a bare RTCIceCandidateInit or one wrapped as {"candidate": {...}}.
// An empty candidate string is the end-of-candidates marker and is allowed.
func validateCandidate(data json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(data, &init); err == nil {
		return nil
	}
	var wrapped struct {
		Candidate *webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if wrapped.Candidate == nil {
		return fmt.Errorf("%w: missing candidate", ErrInvalidPayload)
	}
	return nil
}

// ICEServers is what clients should feed into their RTCPeerConnection.
func ICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}

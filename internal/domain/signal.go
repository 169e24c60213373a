package domain

import "fmt"

type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

func ParseSignalKind(s string) (SignalKind, error) {
	switch k := SignalKind(s); k {
	case SignalOffer, SignalAnswer, SignalICECandidate:
		return k, nil
	}
	return "", fmt.Errorf("unknown signal kind %q", s)
}

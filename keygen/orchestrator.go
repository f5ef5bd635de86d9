// Package keygen implements the dual-curve DKG orchestrator from
// spec.md §4.D: every validator set key-gen always produces a
// coordinator-curve key (MuSig/Ristretto, for set_keys and
// Tributary-internal signatures) and a network-curve key (FROST,
// whichever curve the target external chain uses) together, sharing one
// participant index across both curves so the two DKGs can be verified,
// blamed and confirmed as a single unit.
//
// Grounded on the teacher's consensus/bft Reactor command-dispatch
// pattern (a small set of exported Handle* methods mutating
// reactor-local state, called from a single driving goroutine) and on
// original_source/processor/src/key_gen.rs's two invariants: both curves
// must reach DkgConfirmed together, and ANY detected fault blames that
// participant on whichever curve surfaced it first.
package keygen

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tos-network/custody/crypto/evrf"
)

// Command mirrors the two coordinator->processor KeyGen commands spec.md
// §4.D/§6 names.
type Command uint8

const (
	CommandGenerateKey Command = iota
	CommandParticipation
)

// Session is one (ValidatorSet, attempt) key generation instance,
// covering both curves simultaneously.
type Session struct {
	mu sync.Mutex

	threshold int
	coordPub  []evrf.PublicKey
	netPub    []evrf.PublicKey
	// weights maps participant index -> key-share count, used to compute
	// participating_weight (spec.md §4.D: "summing the share counts of
	// distinct effective eVRF public keys represented").
	weights map[int]uint64

	selfIndex int
	privKey   []byte

	coordCtx evrf.Context
	netCtx   evrf.Context

	coordParticipations map[int]evrf.Participation
	netParticipations   map[int]evrf.Participation

	coordResult *evrf.VerifyResult
	netResult   *evrf.VerifyResult

	blamed map[int]bool

	keysGenerated bool
	coordKey      evrf.PublicKey
	netKey        evrf.PublicKey
	coordShare    []byte
	netShare      []byte
}

// NewSession starts a key-gen session for a set of `threshold`-of-n
// participants, where this validator is `selfIndex` (1-based) and holds
// privKey for both curves' Participate calls (spec.md §4.A: a single
// private key seeds both curves' transcripts, since the binding context
// already domain-separates them). weights gives each participant index's
// key-share count.
//
// Per spec.md §4.D step 1, each posted key list is coerced (§4.A) before
// use; any coerced (invalid) key is reported back as a BlameReport
// immediately, before a single Participation has been exchanged.
func NewSession(threshold int, coordPubRaw, netPubRaw []evrf.PublicKey, weights map[int]uint64, selfIndex int, privKey []byte, coordCtx, netCtx evrf.Context) (*Session, []BlameReport) {
	coordPub, coordFaulty := evrf.CoerceKeys(coordPubRaw)
	netPub, netFaulty := evrf.CoerceKeys(netPubRaw)

	s := &Session{
		threshold:           threshold,
		coordPub:            coordPub,
		netPub:              netPub,
		weights:             weights,
		selfIndex:           selfIndex,
		privKey:             privKey,
		coordCtx:            coordCtx,
		netCtx:              netCtx,
		coordParticipations: make(map[int]evrf.Participation),
		netParticipations:   make(map[int]evrf.Participation),
		blamed:              make(map[int]bool),
	}

	var blames []BlameReport
	for _, idx := range coordFaulty {
		s.blamed[idx] = true
		blames = append(blames, BlameReport{Index: idx, Curve: evrf.CurveCoordinator})
	}
	for _, idx := range netFaulty {
		s.blamed[idx] = true
		blames = append(blames, BlameReport{Index: idx, Curve: evrf.CurveNetwork})
	}
	return s, blames
}

// GenerateKey runs this participant's half of the GenerateKey command:
// produce one Participation per curve. Both must be published together
// (spec.md §4.D), so callers send them as a single coordinator message.
func (s *Session) GenerateKey() (coord, network evrf.Participation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coord, err = evrf.Participate(s.coordCtx, s.threshold, s.coordPub, s.privKey)
	if err != nil {
		return nil, nil, fmt.Errorf("keygen: coordinator-curve participate: %w", err)
	}
	network, err = evrf.Participate(s.netCtx, s.threshold, s.netPub, s.privKey)
	if err != nil {
		return nil, nil, fmt.Errorf("keygen: network-curve participate: %w", err)
	}
	s.coordParticipations[s.selfIndex] = coord
	s.netParticipations[s.selfIndex] = network
	return coord, network, nil
}

// ReceiveParticipation splits raw at the natural boundary between the
// two curves' Participations and records them under index. raw must end
// exactly at that boundary; any other length blames the sender (spec.md
// §4.D: "require the buffer exactly ends there (else blame sender)").
//
// If this session's keys have already been generated, the late arrival
// is still verified in isolation (not accumulated): the sender is blamed
// iff its Participation is invalid, and otherwise it is silently
// ignored.
func (s *Session) ReceiveParticipation(index int, raw []byte) (*BlameReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coordLen := evrf.ParticipationLen(s.threshold, len(s.coordPub))
	netLen := evrf.ParticipationLen(s.threshold, len(s.netPub))
	if len(raw) != coordLen+netLen {
		s.blamed[index] = true
		return &BlameReport{Index: index, Curve: evrf.CurveCoordinator}, errors.New("keygen: participation does not end exactly at the two-curve boundary")
	}
	coord := evrf.Participation(raw[:coordLen])
	network := evrf.Participation(raw[coordLen:])

	if s.keysGenerated {
		if !evrf.VerifyOne(s.coordCtx, s.threshold, len(s.coordPub), coord) {
			s.blamed[index] = true
			return &BlameReport{Index: index, Curve: evrf.CurveCoordinator}, nil
		}
		if !evrf.VerifyOne(s.netCtx, s.threshold, len(s.netPub), network) {
			s.blamed[index] = true
			return &BlameReport{Index: index, Curve: evrf.CurveNetwork}, nil
		}
		return nil, nil
	}

	s.coordParticipations[index] = coord
	s.netParticipations[index] = network
	return nil, nil
}

// participatingWeight sums the key-share weight of every index with a
// contribution recorded on BOTH curves (a lone half doesn't count:
// spec.md §4.D stores "the two halves" as one unit).
func (s *Session) participatingWeight() uint64 {
	var sum uint64
	for idx := range s.coordParticipations {
		if _, ok := s.netParticipations[idx]; ok {
			sum += s.weights[idx]
		}
	}
	return sum
}

func (s *Session) removeParticipant(idx int) {
	delete(s.coordParticipations, idx)
	delete(s.netParticipations, idx)
}

// BlameReport names one faulty participant index and which curve's
// verification surfaced the fault; Verify emits one for every faulty
// index either curve reports.
type BlameReport struct {
	Index int
	Curve evrf.Curve
}

// Verify implements spec.md §4.D step 2's verification loop: wait until
// participating_weight reaches threshold, then verify the coordinator
// curve first; for each invalid participant, remove it from BOTH curves'
// maps and blame it, then re-verify (the removal may have dropped weight
// below threshold, in which case this attempt fails outright). Once the
// coordinator curve is clean, verify the network curve the same way;
// any removal there loops back to re-verifying the coordinator curve,
// since the participant set changed again. Only once both curves verify
// clean in the same pass are this participant's key shares derived,
// tweaked and persisted by the caller, and the session marked confirmed.
//
// A nil, nil return means "not ready yet" (below threshold); a non-nil
// error means the session cannot proceed even after blaming every fault
// found so far (returned alongside those blames).
func (s *Session) Verify() ([]BlameReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.participatingWeight() < uint64(s.threshold) {
		return nil, nil
	}

	var blames []BlameReport
	for {
		coordResult := evrf.Verify(s.coordCtx, s.threshold, s.coordPub, s.coordParticipations)
		if coordResult.NotEnoughParticipants {
			return blames, errors.New("keygen: not enough participants to reach threshold on the coordinator curve")
		}
		if len(coordResult.Faulty) > 0 {
			for _, idx := range coordResult.Faulty {
				s.removeParticipant(idx)
				s.blamed[idx] = true
				blames = append(blames, BlameReport{Index: idx, Curve: evrf.CurveCoordinator})
			}
			if s.participatingWeight() < uint64(s.threshold) {
				return blames, errors.New("keygen: not enough participants remain after blaming coordinator-curve faults")
			}
			continue
		}

		netResult := evrf.Verify(s.netCtx, s.threshold, s.netPub, s.netParticipations)
		if netResult.NotEnoughParticipants {
			return blames, errors.New("keygen: not enough participants to reach threshold on the network curve")
		}
		if len(netResult.Faulty) > 0 {
			for _, idx := range netResult.Faulty {
				s.removeParticipant(idx)
				s.blamed[idx] = true
				blames = append(blames, BlameReport{Index: idx, Curve: evrf.CurveNetwork})
			}
			if s.participatingWeight() < uint64(s.threshold) {
				return blames, errors.New("keygen: not enough participants remain after blaming network-curve faults")
			}
			continue
		}

		s.coordResult = &coordResult
		s.netResult = &netResult
		break
	}

	coordKey, coordShare, err := evrf.DeriveKeyPair(s.threshold, len(s.coordPub), s.selfIndex, s.coordParticipations)
	if err != nil {
		return blames, fmt.Errorf("keygen: deriving coordinator-curve key: %w", err)
	}
	netKey, netShare, err := evrf.DeriveKeyPair(s.threshold, len(s.netPub), s.selfIndex, s.netParticipations)
	if err != nil {
		return blames, fmt.Errorf("keygen: deriving network-curve key: %w", err)
	}

	s.coordKey, s.coordShare = coordKey, coordShare
	s.netKey, s.netShare = netKey, tweakNetworkShare(netShare)
	s.keysGenerated = true

	return blames, nil
}

// tweakNetworkShare applies the network curve's scalar convention before
// a share is persisted/used for signing (spec.md §4.D: "tweak network
// shares per network convention"). No network wired by this module needs
// a non-identity tweak yet (Bitcoin/Ethereum-family FROST targets use
// the raw scalar); a network requiring e.g. Ed25519-style clamping would
// branch on the network id here.
func tweakNetworkShare(share []byte) []byte {
	return share
}

// GeneratedKeyPair returns this participant's derived (coordinator,
// network) group public keys and final key shares once Verify has
// completed successfully; ok is false before then.
func (s *Session) GeneratedKeyPair() (coordKey, netKey evrf.PublicKey, coordShare, netShare []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.keysGenerated {
		return nil, nil, nil, nil, false
	}
	return s.coordKey, s.netKey, s.coordShare, s.netShare, true
}

// Confirmed reports whether both curves' keys have been derived and the
// session is ready for on-chain DkgConfirmed (spec.md §3/§4.D).
func (s *Session) Confirmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keysGenerated
}

package muc

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/meszmate/conference/internal/xmpp/packet"
)

// StatusCode is a muc#user status code
type StatusCode int

// Known status codes
const (
	StatusNonAnonymous        StatusCode = 100
	StatusAffiliationChanged  StatusCode = 101
	StatusShowsUnavailable    StatusCode = 102
	StatusHidesUnavailable    StatusCode = 103
	StatusConfigChanged       StatusCode = 104
	StatusSelfPresence        StatusCode = 110
	StatusLoggingEnabled      StatusCode = 170
	StatusLoggingDisabled     StatusCode = 171
	StatusNowNonAnonymous     StatusCode = 172
	StatusNowSemiAnonymous    StatusCode = 173
	StatusNowFullyAnonymous   StatusCode = 174
	StatusRoomCreated         StatusCode = 201
	StatusNickAssigned        StatusCode = 210
	StatusBanned              StatusCode = 301
	StatusNickChanged         StatusCode = 303
	StatusKicked              StatusCode = 307
	StatusRemovedAffiliation  StatusCode = 321
	StatusRemovedMembersOnly  StatusCode = 322
	StatusRemovedShuttingDown StatusCode = 332
)

// knownStatus maps each known code to its bit in a StatusSet
var knownStatus = [...]StatusCode{
	StatusNonAnonymous,
	StatusAffiliationChanged,
	StatusShowsUnavailable,
	StatusHidesUnavailable,
	StatusConfigChanged,
	StatusSelfPresence,
	StatusLoggingEnabled,
	StatusLoggingDisabled,
	StatusNowNonAnonymous,
	StatusNowSemiAnonymous,
	StatusNowFullyAnonymous,
	StatusRoomCreated,
	StatusNickAssigned,
	StatusBanned,
	StatusNickChanged,
	StatusKicked,
	StatusRemovedAffiliation,
	StatusRemovedMembersOnly,
	StatusRemovedShuttingDown,
}

func statusBit(c StatusCode) (uint32, bool) {
	for i, k := range knownStatus {
		if k == c {
			return 1 << uint(i), true
		}
	}
	return 0, false
}

// StatusSet is the set of status codes carried by one stanza. Known codes
// are kept in a bitset; codes this package does not know are retained in
// Unknown but never interpreted.
type StatusSet struct {
	bits    uint32
	Unknown []int
}

// NewStatusSet builds a set from codes
func NewStatusSet(codes ...StatusCode) StatusSet {
	var s StatusSet
	for _, c := range codes {
		s.Add(c)
	}
	return s
}

// Add adds a code to the set
func (s *StatusSet) Add(c StatusCode) {
	if bit, ok := statusBit(c); ok {
		s.bits |= bit
		return
	}
	for _, u := range s.Unknown {
		if u == int(c) {
			return
		}
	}
	s.Unknown = append(s.Unknown, int(c))
}

// Has reports whether a known code is in the set
func (s StatusSet) Has(c StatusCode) bool {
	bit, ok := statusBit(c)
	return ok && s.bits&bit != 0
}

// Empty reports whether the set holds no codes at all
func (s StatusSet) Empty() bool {
	return s.bits == 0 && len(s.Unknown) == 0
}

// Codes returns every code in the set, known and unknown, in ascending order
func (s StatusSet) Codes() []StatusCode {
	var codes []StatusCode
	for i, k := range knownStatus {
		if s.bits&(1<<uint(i)) != 0 {
			codes = append(codes, k)
		}
	}
	for _, u := range s.Unknown {
		codes = append(codes, StatusCode(u))
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// DecodeStatus extracts the status set from an inbound room stanza. A missing
// muc#user payload or a non-numeric code is a protocol mismatch.
func DecodeStatus(s *packet.Stanza) (StatusSet, error) {
	var set StatusSet
	if !s.IsMUCUser() {
		return set, fmt.Errorf("%w: no muc#user payload", ErrProtocolMismatch)
	}
	for _, raw := range s.StatusCodes() {
		code, err := strconv.Atoi(raw)
		if err != nil || code < 100 || code > 999 {
			return StatusSet{}, fmt.Errorf("%w: malformed status code %q", ErrProtocolMismatch, raw)
		}
		set.Add(StatusCode(code))
	}
	return set, nil
}

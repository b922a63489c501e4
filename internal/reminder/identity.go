package reminder

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind tells exact-time jobs from lead-time jobs.
type Kind string

const (
	KindExact Kind = "exact"
	KindLead  Kind = "lead"
)

const sep = "_"

var ErrMalformedIdentity = errors.New("malformed job identity")

// Identity is the metadata carried by a job name.
type Identity struct {
	SubscriberID int64
	Prayer       string
	Date         string
	OffsetHours  int
	OffsetKnown  bool
	Token        string
	LeadTime     *int
	Kind         Kind
}

var escaper = strings.NewReplacer("%", "%25", sep, "%5F")

func escape(s string) string { return escaper.Replace(s) }

// SubscriberPrefix is the name prefix shared by all of a subscriber's jobs.
func SubscriberPrefix(id int64) string {
	return strconv.FormatInt(id, 10) + sep
}

// NewToken returns a fresh disambiguating token.
func NewToken() string { return uuid.NewString() }

// Encode renders id as id_prayer_date_offset_token[_lead]_kind with every
// field escaped, so no field value can contain the separator.
func (id Identity) Encode() string {
	fields := []string{
		strconv.FormatInt(id.SubscriberID, 10),
		escape(id.Prayer),
		escape(id.Date),
		offsetField(id),
		escape(id.Token),
	}
	if id.LeadTime != nil {
		fields = append(fields, strconv.Itoa(*id.LeadTime))
	}
	fields = append(fields, string(id.Kind))
	return strings.Join(fields, sep)
}

func offsetField(id Identity) string {
	if !id.OffsetKnown {
		return "unknown"
	}
	return strconv.Itoa(id.OffsetHours)
}

// DecodeIdentity is the inverse of Encode. An unparseable offset is reported
// through OffsetKnown rather than as an error.
func DecodeIdentity(name string) (Identity, error) {
	parts := strings.Split(name, sep)
	if len(parts) < 6 || len(parts) > 7 {
		return Identity{}, fmt.Errorf("%w: %d fields in %q", ErrMalformedIdentity, len(parts), name)
	}

	var id Identity
	var err error
	if id.SubscriberID, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
		return Identity{}, fmt.Errorf("%w: subscriber %q", ErrMalformedIdentity, parts[0])
	}
	switch k := Kind(parts[len(parts)-1]); k {
	case KindExact, KindLead:
		id.Kind = k
	default:
		return Identity{}, fmt.Errorf("%w: kind %q", ErrMalformedIdentity, k)
	}
	if id.Prayer, err = url.PathUnescape(parts[1]); err != nil {
		return Identity{}, fmt.Errorf("%w: prayer: %w", ErrMalformedIdentity, err)
	}
	if id.Date, err = url.PathUnescape(parts[2]); err != nil {
		return Identity{}, fmt.Errorf("%w: date: %w", ErrMalformedIdentity, err)
	}
	if off, err := strconv.Atoi(parts[3]); err == nil {
		id.OffsetHours, id.OffsetKnown = off, true
	}
	if id.Token, err = url.PathUnescape(parts[4]); err != nil {
		return Identity{}, fmt.Errorf("%w: token: %w", ErrMalformedIdentity, err)
	}
	if len(parts) == 7 {
		if lead, err := strconv.Atoi(parts[5]); err == nil {
			id.LeadTime = &lead
		}
	}
	return id, nil
}

// IsExactName reports whether a job name belongs to subscriber id and is an
// exact-time job.
func IsExactName(name string, id int64) bool {
	return strings.HasPrefix(name, SubscriberPrefix(id)) && strings.HasSuffix(name, sep+string(KindExact))
}

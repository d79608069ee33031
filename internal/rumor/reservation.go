// Package rumor assembles and validates the application-level rumor kinds
// carried by the messaging core: a reservation request (kind 9901) and a
// reservation response (kind 9902). Tag assembly follows the teacher's
// CreateNostrEvent/createEphemeralRumor pattern of building an
// nostr.Tags slice field by field; validation follows the same
// getTagValue-by-name lookup the teacher uses to parse inbound events.
package rumor

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/nbd-wtf/go-nostr"

	"github.com/synvya/nostr-rr/internal/rrerr"
)

const (
	// KindReservationRequest is the reservation-request rumor kind.
	KindReservationRequest = 9901
	// KindReservationResponse is the reservation-response rumor kind.
	KindReservationResponse = 9902
)

const maxNameLen = 200

var hexID64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ReservationStatus is the set of admissible values for a response's
// "status" tag.
type ReservationStatus string

const (
	StatusConfirmed ReservationStatus = "confirmed"
	StatusDeclined  ReservationStatus = "declined"
	StatusCancelled ReservationStatus = "cancelled"
)

func (s ReservationStatus) valid() bool {
	switch s {
	case StatusConfirmed, StatusDeclined, StatusCancelled:
		return true
	}
	return false
}

// ReservationRequest is the caller-facing shape of a kind-9901 rumor.
type ReservationRequest struct {
	RestaurantPK string
	RelayURL     string // optional, third element of the "p" tag
	PartySize    int
	Time         int64
	TZID         string
	Name         string
	Email        string // "mailto:..." form; mutually optional with Telephone
	Telephone    string // "tel:..." form
	Duration     int64  // optional, seconds
	EarliestTime int64  // optional
	LatestTime   int64  // optional
	Broker       *bool  // optional tri-state
	Content      string
}

// BuildTags assembles the nostr.Tags for a reservation request, validating
// boundaries up front so no event is produced from invalid input.
func (r ReservationRequest) BuildTags() (nostr.Tags, error) {
	if r.RestaurantPK == "" {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "restaurant public key is required")
	}
	if r.PartySize < 1 || r.PartySize > 20 {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "party_size must be between 1 and 20")
	}
	if r.Time <= 0 {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "time is required")
	}
	if r.TZID == "" {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "tzid is required")
	}
	if len(r.Name) == 0 || len(r.Name) > maxNameLen {
		return nil, rrerr.New(rrerr.KindBuildInvalid, fmt.Sprintf("name must be 1-%d chars", maxNameLen))
	}
	hasEmail := r.Email != ""
	hasPhone := r.Telephone != ""
	if !hasEmail && !hasPhone {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "one of email or telephone is required")
	}
	if hasEmail && !hasPrefix(r.Email, "mailto:") {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "email tag must be in mailto: form")
	}
	if hasPhone && !hasPrefix(r.Telephone, "tel:") {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "telephone tag must be in tel: form")
	}

	pTag := nostr.Tag{"p", r.RestaurantPK}
	if r.RelayURL != "" {
		pTag = append(pTag, r.RelayURL)
	}

	tags := nostr.Tags{
		pTag,
		{"party_size", strconv.Itoa(r.PartySize)},
		{"time", strconv.FormatInt(r.Time, 10)},
		{"tzid", r.TZID},
		{"name", r.Name},
	}
	if hasEmail {
		tags = append(tags, nostr.Tag{"email", r.Email})
	}
	if hasPhone {
		tags = append(tags, nostr.Tag{"telephone", r.Telephone})
	}
	if r.Duration > 0 {
		tags = append(tags, nostr.Tag{"duration", strconv.FormatInt(r.Duration, 10)})
	}
	if r.EarliestTime > 0 {
		tags = append(tags, nostr.Tag{"earliest_time", strconv.FormatInt(r.EarliestTime, 10)})
	}
	if r.LatestTime > 0 {
		tags = append(tags, nostr.Tag{"latest_time", strconv.FormatInt(r.LatestTime, 10)})
	}
	if r.Broker != nil {
		tags = append(tags, nostr.Tag{"broker", boolTag(*r.Broker)})
	}
	return tags, nil
}

// ParseReservationRequest validates a received kind-9901 rumor and extracts
// its fields, re-checking every required tag.
func ParseReservationRequest(evt *nostr.Event) (*ReservationRequest, error) {
	if evt.Kind != KindReservationRequest {
		return nil, rrerr.New(rrerr.KindWrongKind, "not a reservation-request rumor")
	}
	g := tagGetter(evt.Tags)

	pTag := g.first("p")
	if pTag == nil || len(*pTag) < 2 {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "missing p tag")
	}
	req := &ReservationRequest{RestaurantPK: (*pTag)[1], Content: evt.Content}
	if len(*pTag) >= 3 {
		req.RelayURL = (*pTag)[2]
	}

	partySize, err := g.requireInt("party_size")
	if err != nil {
		return nil, err
	}
	if partySize < 1 || partySize > 20 {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "party_size out of range")
	}
	req.PartySize = partySize

	req.Time, err = g.requireInt64("time")
	if err != nil {
		return nil, err
	}
	req.TZID, err = g.requireString("tzid")
	if err != nil {
		return nil, err
	}
	req.Name, err = g.requireString("name")
	if err != nil {
		return nil, err
	}
	if len(req.Name) > maxNameLen {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "name too long")
	}

	req.Email = g.optString("email")
	req.Telephone = g.optString("telephone")
	if req.Email == "" && req.Telephone == "" {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "missing contact (email or telephone)")
	}
	if req.Email != "" && !hasPrefix(req.Email, "mailto:") {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "email tag must be in mailto: form")
	}
	if req.Telephone != "" && !hasPrefix(req.Telephone, "tel:") {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "telephone tag must be in tel: form")
	}

	if v := g.optString("duration"); v != "" {
		req.Duration, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := g.optString("earliest_time"); v != "" {
		req.EarliestTime, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := g.optString("latest_time"); v != "" {
		req.LatestTime, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := g.optString("broker"); v != "" {
		b := v == "True"
		req.Broker = &b
	}
	return req, nil
}

// ReservationResponse is the caller-facing shape of a kind-9902 rumor.
type ReservationResponse struct {
	CustomerPK    string
	RelayURL      string
	RequestRumorID string // the "e" tag's referenced request id
	Status        ReservationStatus
	Time          int64
	TZID          string
	Duration      int64
	Content       string
}

// BuildTags assembles the nostr.Tags for a reservation response.
func (r ReservationResponse) BuildTags() (nostr.Tags, error) {
	if r.CustomerPK == "" {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "customer public key is required")
	}
	if !hexID64.MatchString(r.RequestRumorID) {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "request_id must be 64-char lowercase hex")
	}
	if !r.Status.valid() {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "status must be confirmed, declined or cancelled")
	}
	if r.Time <= 0 {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "time is required")
	}
	if r.TZID == "" {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "tzid is required")
	}
	if r.Duration <= 0 {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "duration is required")
	}

	pTag := nostr.Tag{"p", r.CustomerPK}
	if r.RelayURL != "" {
		pTag = append(pTag, r.RelayURL)
	}

	return nostr.Tags{
		pTag,
		{"e", r.RequestRumorID, "", "root"},
		{"status", string(r.Status)},
		{"time", strconv.FormatInt(r.Time, 10)},
		{"tzid", r.TZID},
		{"duration", strconv.FormatInt(r.Duration, 10)},
	}, nil
}

// ParseReservationResponse validates a received kind-9902 rumor.
func ParseReservationResponse(evt *nostr.Event) (*ReservationResponse, error) {
	if evt.Kind != KindReservationResponse {
		return nil, rrerr.New(rrerr.KindWrongKind, "not a reservation-response rumor")
	}
	g := tagGetter(evt.Tags)

	pTag := g.first("p")
	if pTag == nil || len(*pTag) < 2 {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "missing p tag")
	}
	resp := &ReservationResponse{CustomerPK: (*pTag)[1], Content: evt.Content}
	if len(*pTag) >= 3 {
		resp.RelayURL = (*pTag)[2]
	}

	eTag := g.first("e")
	if eTag == nil {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "missing e tag")
	}
	if len(*eTag) != 4 || (*eTag)[3] != "root" {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "e tag must be [\"e\", id, \"\", \"root\"]")
	}
	if !hexID64.MatchString((*eTag)[1]) {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "e tag request id is not 64-char hex")
	}
	resp.RequestRumorID = (*eTag)[1]

	status, err := g.requireString("status")
	if err != nil {
		return nil, err
	}
	resp.Status = ReservationStatus(status)
	if !resp.Status.valid() {
		return nil, rrerr.New(rrerr.KindBuildInvalid, "invalid status value")
	}

	resp.Time, err = g.requireInt64("time")
	if err != nil {
		return nil, err
	}
	resp.TZID, err = g.requireString("tzid")
	if err != nil {
		return nil, err
	}
	resp.Duration, err = g.requireInt64("duration")
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// RequestID returns the rumor id a response's "e" tag references, used by
// the waiter registry to correlate responses with pending requests.
func RequestID(evt *nostr.Event) (string, bool) {
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == "e" {
			return tag[1], true
		}
	}
	return "", false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func boolTag(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// tagGetter provides named-tag lookups over an event's tags, mirroring the
// teacher's getTagValue helper generalised to structured field extraction.
type tagGetter nostr.Tags

func (g tagGetter) first(name string) *nostr.Tag {
	for i := range g {
		if len(g[i]) >= 1 && g[i][0] == name {
			return &g[i]
		}
	}
	return nil
}

func (g tagGetter) optString(name string) string {
	t := g.first(name)
	if t == nil || len(*t) < 2 {
		return ""
	}
	return (*t)[1]
}

func (g tagGetter) requireString(name string) (string, error) {
	v := g.optString(name)
	if v == "" {
		return "", rrerr.New(rrerr.KindBuildInvalid, "missing "+name+" tag")
	}
	return v, nil
}

func (g tagGetter) requireInt(name string) (int, error) {
	v, err := g.requireString(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, rrerr.Wrap(rrerr.KindBuildInvalid, "invalid "+name+" tag", err)
	}
	return n, nil
}

func (g tagGetter) requireInt64(name string) (int64, error) {
	v, err := g.requireString(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, rrerr.Wrap(rrerr.KindBuildInvalid, "invalid "+name+" tag", err)
	}
	return n, nil
}

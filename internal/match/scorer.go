// Package match ranks candidate officers for a site using a multi-factor
// heuristic over distance, availability, guard type, shift preference and
// placeholder certification/performance baselines.
package match

import (
	"context"
	"sort"

	"github.com/cris-mate/guardian-optix-sub000/internal/apperr"
	"github.com/cris-mate/guardian-optix-sub000/internal/geo"
	"github.com/cris-mate/guardian-optix-sub000/internal/model"
)

// ShiftFinder answers whether an officer already holds a non-cancelled
// shift on a date, at any site.
type ShiftFinder interface {
	OfficerHasShiftOn(ctx context.Context, officerID, date string) (bool, error)
}

// Context narrows a recommendation to a concrete slot.
type Context struct {
	Date      string // YYYY-MM-DD
	ShiftType string
}

// Scores breaks the total down by factor.
type Scores struct {
	Distance        int `json:"distance"`
	Availability    int `json:"availability"`
	GuardType       int `json:"guard_type"`
	ShiftPreference int `json:"shift_preference"`
	Certification   int `json:"certification"`
	Performance     int `json:"performance"`
}

// RankedOfficer is one scored candidate.
type RankedOfficer struct {
	Officer        model.Officer `json:"officer"`
	Scores         Scores        `json:"scores"`
	Total          int           `json:"total"`
	Score          float64       `json:"score"` // percentage of the 100-point maximum
	Recommendation string        `json:"recommendation"`
	DistanceKM     float64       `json:"distance_km,omitempty"`
}

// Scorer computes site/officer recommendations.
type Scorer struct {
	resolver geo.Resolver
	shifts   ShiftFinder
}

// NewScorer builds a scorer. The resolver turns postcodes into coordinates
// and is injectable so a real geocoder can replace the static gazetteer.
func NewScorer(resolver geo.Resolver, shifts ShiftFinder) *Scorer {
	return &Scorer{resolver: resolver, shifts: shifts}
}

// Sub-score caps. Certification and performance are fixed baselines until a
// real signal feeds them; the caps are kept so the total still sums to 100.
const (
	maxDistance        = 40
	maxAvailability    = 20
	maxGuardType       = 15
	maxShiftPreference = 10
	maxCertification   = 10
	maxPerformance     = 5

	baselineCertification = 5
	baselinePerformance   = 3
)

// preferredGuardTypes maps a site category to the guard types best suited
// to it. "static" is the generalist fallback scored below an exact match.
var preferredGuardTypes = map[string][]string{
	"retail":       {"static", "mobile-patrol"},
	"corporate":    {"static", "concierge"},
	"construction": {"static", "mobile-patrol", "k9"},
	"events":       {"events", "door-supervisor"},
	"residential":  {"concierge", "static"},
	"industrial":   {"mobile-patrol", "k9"},
	"healthcare":   {"static", "concierge"},
}

// Recommend scores candidates for a site and returns them ranked. Officers
// already holding a non-cancelled shift on the context date are excluded
// from the pool entirely.
func (s *Scorer) Recommend(ctx context.Context, site model.Site, candidates []model.Officer, rc Context) ([]RankedOfficer, error) {
	if rc.Date == "" {
		return nil, apperr.New(apperr.Validation, "recommendation date required")
	}

	var ranked []RankedOfficer
	for _, officer := range candidates {
		booked, err := s.shifts.OfficerHasShiftOn(ctx, officer.ID, rc.Date)
		if err != nil {
			return nil, apperr.Wrap(apperr.Storage, err, "check existing shifts")
		}
		if booked {
			continue
		}
		ranked = append(ranked, s.scoreOne(site, officer, rc))
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].Officer.ID < ranked[j].Officer.ID
	})
	return ranked, nil
}

func (s *Scorer) scoreOne(site model.Site, officer model.Officer, rc Context) RankedOfficer {
	r := RankedOfficer{Officer: officer}
	r.Scores.Distance, r.DistanceKM = s.distanceScore(officer.Postcode, site.Postcode)
	r.Scores.Availability = availabilityScore(officer.Availability)
	r.Scores.GuardType = guardTypeScore(officer.GuardType, site.SiteType)
	r.Scores.ShiftPreference = shiftPreferenceScore(officer.ShiftTime, rc.ShiftType)
	r.Scores.Certification = baselineCertification
	r.Scores.Performance = baselinePerformance

	r.Total = r.Scores.Distance + r.Scores.Availability + r.Scores.GuardType +
		r.Scores.ShiftPreference + r.Scores.Certification + r.Scores.Performance
	max := maxDistance + maxAvailability + maxGuardType + maxShiftPreference +
		maxCertification + maxPerformance
	r.Score = float64(r.Total) / float64(max) * 100
	r.Recommendation = tier(r.Score)
	return r
}

// distanceScore is a step function on the great-circle distance between the
// postcode centroids. Either postcode failing to resolve scores 0.
func (s *Scorer) distanceScore(officerPostcode, sitePostcode string) (int, float64) {
	oLat, oLon, ok := s.resolver.Resolve(officerPostcode)
	if !ok {
		return 0, 0
	}
	sLat, sLon, ok := s.resolver.Resolve(sitePostcode)
	if !ok {
		return 0, 0
	}
	km := geo.Distance(oLat, oLon, sLat, sLon) / 1000
	switch {
	case km <= 5:
		return 40, km
	case km <= 10:
		return 35, km
	case km <= 20:
		return 25, km
	case km <= 30:
		return 15, km
	case km <= 50:
		return 5, km
	default:
		return 0, km
	}
}

func availabilityScore(availability string) int {
	switch availability {
	case "true":
		return maxAvailability
	case "partial":
		return 10
	default:
		return 0
	}
}

func guardTypeScore(guardType, siteType string) int {
	for _, preferred := range preferredGuardTypes[siteType] {
		if guardType == preferred {
			return maxGuardType
		}
	}
	if guardType == "static" {
		return 10
	}
	return 0
}

// shiftPreferenceScore checks the officer's day/night preference against
// the slot. Morning and Afternoon count as day work, Night as night work.
func shiftPreferenceScore(preference, shiftType string) int {
	switch preference {
	case "any":
		return 8
	case "flexible":
		return 6
	case "day":
		if shiftType == model.ShiftMorning || shiftType == model.ShiftAfternoon {
			return maxShiftPreference
		}
	case "night":
		if shiftType == model.ShiftNight {
			return maxShiftPreference
		}
	}
	return 0
}

func tier(score float64) string {
	switch {
	case score >= 80:
		return "highly-recommended"
	case score >= 60:
		return "recommended"
	case score >= 40:
		return "suitable"
	default:
		return "available"
	}
}

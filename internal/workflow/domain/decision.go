package domain

import "strings"

// Decision is the closed set of reply classifications the engine acts on.
type Decision string

const (
	DecisionNotInterested    Decision = "NotInterested"
	DecisionNeedsAdminReview Decision = "NeedsAdminReview"
	DecisionFollowUp         Decision = "FollowUp"
	DecisionUnclassified     Decision = "Unclassified"
)

// ParseDecision maps a classifier label onto a Decision. Labels are matched
// case-insensitively ignoring spaces, dashes and underscores, so both
// "Dealer Not Interested" and "NotInterested" resolve. Anything else is
// Unclassified.
func ParseDecision(label string) Decision {
	key := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(label)))

	switch key {
	case "dealernotinterested", "notinterested":
		return DecisionNotInterested
	case "adminreview", "needsadminreview":
		return DecisionNeedsAdminReview
	case "followup":
		return DecisionFollowUp
	default:
		return DecisionUnclassified
	}
}

// AIAssessment is what the reply classifier returned for one reply.
type AIAssessment struct {
	Summary        string
	Decision       Decision
	Label          string
	TokensConsumed int
}

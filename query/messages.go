package query

import (
	"net/url"
	"strings"
)

const (
	TypeResolveResult     = "resultlink.query.result.resolve"
	TypeResolveComparison = "resultlink.query.comparison.resolve"
	TypeCampaignInsights  = "resultlink.query.insights.campaigns"
)

// ResolveResultMessage carries the destination page query string as received.
// A missing token is a valid input that resolves to the missing parameter
// state, so Validate does not inspect it.
type ResolveResultMessage struct {
	Query url.Values
}

func (ResolveResultMessage) Type() string { return TypeResolveResult }

func (ResolveResultMessage) Validate() error { return nil }

type ResolveComparisonMessage struct {
	Query url.Values
}

func (ResolveComparisonMessage) Type() string { return TypeResolveComparison }

func (ResolveComparisonMessage) Validate() error { return nil }

type CampaignInsightsMessage struct {
	AccountID   string
	DatePreset  string
	AccessToken string
}

func (CampaignInsightsMessage) Type() string { return TypeCampaignInsights }

func (m CampaignInsightsMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return queryValidationError("account_id", "is required")
	}
	if strings.TrimSpace(m.AccessToken) == "" {
		return queryValidationError("access_token", "is required")
	}
	return nil
}

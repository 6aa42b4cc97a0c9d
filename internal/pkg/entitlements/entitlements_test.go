package entitlements

import (
	"testing"

	"github.com/mkarst/CertForge/app/models"
)

func TestClassifyPlanName(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{in: "Pro Plan", want: TierPro},
		{in: "PRO MONTHLY", want: TierPro},
		{in: "Premium Plan", want: TierPremium},
		{in: "premium-yearly", want: TierPremium},
		{in: "Premium Pro Bundle", want: TierPremium},
		{in: "Starter", want: TierFree},
		{in: "", want: TierFree},
		{in: "  ", want: TierFree},
	}

	for _, tt := range tests {
		if got := ClassifyPlanName(tt.in); got != tt.want {
			t.Fatalf("ClassifyPlanName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTier(t *testing.T) {
	if got := NormalizeTier(" Premium "); got != TierPremium {
		t.Fatalf("NormalizeTier = %q", got)
	}
	if got := NormalizeTier("pro"); got != TierPro {
		t.Fatalf("NormalizeTier = %q", got)
	}
	if got := NormalizeTier("gold"); got != TierFree {
		t.Fatalf("unknown tier must normalize to free, got %q", got)
	}
}

func TestTierRankOrdering(t *testing.T) {
	if !(TierRank(TierPremium) > TierRank(TierPro) && TierRank(TierPro) > TierRank(TierFree)) {
		t.Fatalf("tier ranking broken: premium=%d pro=%d free=%d",
			TierRank(TierPremium), TierRank(TierPro), TierRank(TierFree))
	}
}

func TestFromTier(t *testing.T) {
	ent := FromTier(TierPro, "Pro Plan")
	if !ent.IsPro || ent.IsPremium || !ent.IsSubscribed || ent.PlanName != "Pro Plan" {
		t.Fatalf("unexpected pro entitlement: %+v", ent)
	}

	ent = FromTier(TierPremium, "Premium Plan")
	if ent.IsPro || !ent.IsPremium || !ent.IsSubscribed {
		t.Fatalf("unexpected premium entitlement: %+v", ent)
	}

	ent = FromTier(TierFree, "")
	if ent.IsPro || ent.IsPremium || ent.IsSubscribed {
		t.Fatalf("free tier must carry no flags: %+v", ent)
	}
}

func TestPickCurrentPrecedence(t *testing.T) {
	subs := []models.Subscription{
		{ID: 3, Status: models.SubStatusOnTrial, PlanName: "Premium Plan"},
		{ID: 2, Status: models.SubStatusActive, PlanName: "Pro Plan"},
		{ID: 1, Status: models.SubStatusCancelled, PlanName: "Premium Plan"},
	}

	got := pickCurrent(subs)
	if got == nil || got.ID != 2 {
		t.Fatalf("active row must win over on_trial and cancelled, got %+v", got)
	}

	subs = []models.Subscription{
		{ID: 5, Status: models.SubStatusExpired},
		{ID: 4, Status: models.SubStatusOnTrial, PlanName: "Pro Plan"},
	}
	got = pickCurrent(subs)
	if got == nil || got.ID != 4 {
		// Expired listed first but on_trial outranks it.
		t.Fatalf("on_trial must win over expired, got %+v", got)
	}

	if pickCurrent(nil) != nil {
		t.Fatalf("empty slice must pick nothing")
	}
}

func TestSubscriptionEntitling(t *testing.T) {
	for _, status := range []string{models.SubStatusActive, models.SubStatusOnTrial} {
		sub := models.Subscription{Status: status}
		if !sub.IsEntitling() {
			t.Fatalf("%s must entitle", status)
		}
	}
	for _, status := range []string{models.SubStatusPastDue, models.SubStatusCancelled, models.SubStatusExpired} {
		sub := models.Subscription{Status: status}
		if sub.IsEntitling() {
			t.Fatalf("%s must not entitle", status)
		}
	}
}

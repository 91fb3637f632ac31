package domain

import "testing"

func testLossReasons() LossReasonsConfig {
	return LossReasonsConfig{
		Reasons: []LossReason{
			{Code: "price_too_high", Category: "lost"},
			{Code: "chose_competitor", Category: "lost", RequiresDetail: true, DetailField: "competitor_name"},
			{Code: "no_fleet", Category: "disqualified"},
		},
	}
}

func TestCheckLossReason(t *testing.T) {
	cfg := testLossReasons()

	cases := []struct {
		name      string
		code      string
		target    string
		valid     bool
		wantError string
		detail    bool
	}{
		{"valid simple reason", "price_too_high", "lost", true, "", false},
		{"valid reason requiring detail", "chose_competitor", "lost", true, "", true},
		{"missing code", "", "lost", false, "Loss reason is required for status lost", false},
		{"unknown code", "bad_weather", "lost", false, "Unknown loss reason: bad_weather", false},
		{"category mismatch", "no_fleet", "lost", false, "Loss reason no_fleet does not apply to status lost", false},
		{"matching disqualified category", "no_fleet", "disqualified", true, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			check := cfg.CheckLossReason(tc.code, tc.target)
			if check.Valid != tc.valid {
				t.Fatalf("Valid = %v, want %v", check.Valid, tc.valid)
			}
			if check.Error != tc.wantError {
				t.Fatalf("Error = %q, want %q", check.Error, tc.wantError)
			}
			if check.RequiresDetail != tc.detail {
				t.Fatalf("RequiresDetail = %v, want %v", check.RequiresDetail, tc.detail)
			}
		})
	}
}

func TestMissingDetailError(t *testing.T) {
	got := MissingDetailError("chose_competitor")
	want := "Loss reason chose_competitor requires additional detail"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

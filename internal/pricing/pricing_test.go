package pricing

import (
	"testing"

	"github.com/messops/mess-system/internal/model"
)

func TestPriceFor(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name        string
		gender      model.Gender
		plan        model.PlanType
		wantMonthly int64
		wantPerMeal int64
	}{
		{
			name:        "male two time",
			gender:      model.GenderMale,
			plan:        model.PlanTwoTime,
			wantMonthly: 280000,
			wantPerMeal: 4667,
		},
		{
			name:        "female two time",
			gender:      model.GenderFemale,
			plan:        model.PlanTwoTime,
			wantMonthly: 240000,
			wantPerMeal: 4000,
		},
		{
			name:        "male one time",
			gender:      model.GenderMale,
			plan:        model.PlanOneTime,
			wantMonthly: 150000,
			wantPerMeal: 5000,
		},
		{
			name:        "female one time",
			gender:      model.GenderFemale,
			plan:        model.PlanOneTime,
			wantMonthly: 130000,
			wantPerMeal: 4333,
		},
		{
			name:        "unknown gender falls back to male",
			gender:      model.Gender("Other"),
			plan:        model.PlanTwoTime,
			wantMonthly: 280000,
			wantPerMeal: 4667,
		},
		{
			name:        "unknown plan falls back to two time",
			gender:      model.GenderMale,
			plan:        model.PlanType(""),
			wantMonthly: 280000,
			wantPerMeal: 4667,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monthly, perMeal := table.PriceFor(tt.gender, tt.plan)
			if monthly != tt.wantMonthly {
				t.Fatalf("monthly = %d, want %d", monthly, tt.wantMonthly)
			}
			if perMeal != tt.wantPerMeal {
				t.Fatalf("perMeal = %d, want %d", perMeal, tt.wantPerMeal)
			}
		})
	}
}

func TestPriceForCustomTable(t *testing.T) {
	table := Table{
		MaleTwoTime:   300000,
		FemaleTwoTime: 260000,
		MaleOneTime:   160000,
		FemaleOneTime: 140000,
	}

	monthly, perMeal := table.PriceFor(model.GenderFemale, model.PlanOneTime)
	if monthly != 140000 {
		t.Fatalf("monthly = %d, want 140000", monthly)
	}
	if perMeal != 4667 {
		t.Fatalf("perMeal = %d, want 4667", perMeal)
	}
}

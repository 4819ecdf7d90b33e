package conditions

import (
	"strings"
	"testing"

	"github.com/plantio/irrigation-engine/internal/model/entities"
)

func f64(v float64) *float64 { return &v }
func b(v bool) *bool         { return &v }

func TestEvaluate_FixedModeAlwaysProceeds(t *testing.T) {
	c := &entities.Conditions{MinMoisture: f64(100), SkipIfRaining: true}
	dec := Evaluate(entities.ModeFixed, c, Snapshot{})
	if !dec.Proceed {
		t.Fatalf("fixed mode skipped: %s", dec.Reason)
	}
}

func TestEvaluate_MoistureAboveMinimumProceeds(t *testing.T) {
	c := &entities.Conditions{MinMoisture: f64(30)}
	dec := Evaluate(entities.ModeSmart, c, Snapshot{Moisture: f64(45)})
	if !dec.Proceed {
		t.Fatalf("unexpected skip: %s", dec.Reason)
	}
}

func TestEvaluate_MoistureBelowMinimumSkips(t *testing.T) {
	c := &entities.Conditions{MinMoisture: f64(30)}
	dec := Evaluate(entities.ModeSmart, c, Snapshot{Moisture: f64(12)})
	if dec.Proceed {
		t.Fatal("expected skip")
	}
	if !strings.Contains(dec.Reason, "moisture") || !strings.Contains(dec.Reason, "12") {
		t.Fatalf("reason %q should name the moisture clause and value", dec.Reason)
	}
}

func TestEvaluate_TemperatureAboveMaximumSkips(t *testing.T) {
	c := &entities.Conditions{MaxTemperature: f64(35)}
	dec := Evaluate(entities.ModeWeather, c, Snapshot{Temperature: f64(38.5)})
	if dec.Proceed {
		t.Fatal("expected skip")
	}
	if !strings.Contains(dec.Reason, "temperature") {
		t.Fatalf("reason %q should name the temperature clause", dec.Reason)
	}
}

func TestEvaluate_RainSkips(t *testing.T) {
	c := &entities.Conditions{SkipIfRaining: true}
	dec := Evaluate(entities.ModeWeather, c, Snapshot{Raining: b(true)})
	if dec.Proceed || dec.Reason != "currently raining" {
		t.Fatalf("got proceed=%t reason=%q", dec.Proceed, dec.Reason)
	}
}

func TestEvaluate_FirstFailingClauseWins(t *testing.T) {
	c := &entities.Conditions{MinMoisture: f64(30), MaxTemperature: f64(35), SkipIfRaining: true}
	snap := Snapshot{Moisture: f64(10), Temperature: f64(40), Raining: b(true)}
	dec := Evaluate(entities.ModeSmart, c, snap)
	if dec.Proceed {
		t.Fatal("expected skip")
	}
	if !strings.Contains(dec.Reason, "moisture") {
		t.Fatalf("reason %q, want the moisture clause (checked first)", dec.Reason)
	}
}

func TestEvaluate_MissingDataFailsConfiguredClause(t *testing.T) {
	cases := []struct {
		name string
		c    entities.Conditions
		snap Snapshot
		want string
	}{
		{"moisture", entities.Conditions{MinMoisture: f64(30)}, Snapshot{}, "moisture reading unavailable"},
		{"temperature", entities.Conditions{MaxTemperature: f64(35)}, Snapshot{}, "temperature reading unavailable"},
		{"rain", entities.Conditions{SkipIfRaining: true}, Snapshot{}, "rain state unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec := Evaluate(entities.ModeSmart, &tc.c, tc.snap)
			if dec.Proceed {
				t.Fatal("missing data must fail the clause, not water blindly")
			}
			if dec.Reason != tc.want {
				t.Fatalf("reason = %q, want %q", dec.Reason, tc.want)
			}
		})
	}
}

func TestEvaluate_UnsetClausesAreNotChecked(t *testing.T) {
	c := &entities.Conditions{MinMoisture: f64(30)}
	// No temperature or rain data; only the moisture clause is configured.
	dec := Evaluate(entities.ModeSmart, c, Snapshot{Moisture: f64(50)})
	if !dec.Proceed {
		t.Fatalf("unexpected skip: %s", dec.Reason)
	}
}

func TestEvaluate_NilConditionsProceeds(t *testing.T) {
	if dec := Evaluate(entities.ModeSmart, nil, Snapshot{}); !dec.Proceed {
		t.Fatalf("nil conditions skipped: %s", dec.Reason)
	}
}

package export

import (
	"github.com/ehr/omopexport/internal/platform/omop"
)

var checkInMeasures = []numericField[*DailyCheckIn]{
	{"mood", func(c *DailyCheckIn) *float64 { return c.Mood }},
	{"energy", func(c *DailyCheckIn) *float64 { return c.Energy }},
	{"anxiety", func(c *DailyCheckIn) *float64 { return c.Anxiety }},
	{"stress", func(c *DailyCheckIn) *float64 { return c.Stress }},
	{"pain_level", func(c *DailyCheckIn) *float64 { return c.PainLevel }},
	{"sleep_hours", func(c *DailyCheckIn) *float64 { return c.SleepHours }},
	{"sleep_quality", func(c *DailyCheckIn) *float64 { return c.SleepQuality }},
	{"appetite", func(c *DailyCheckIn) *float64 { return c.Appetite }},
	{"focus", func(c *DailyCheckIn) *float64 { return c.Focus }},
	{"social_interaction", func(c *DailyCheckIn) *float64 { return c.SocialInteraction }},
	{"exercise_minutes", func(c *DailyCheckIn) *float64 { return c.ExerciseMinutes }},
	{"water_intake_cups", func(c *DailyCheckIn) *float64 { return c.WaterIntakeCups }},
}

var checkInFlags = []flagField[*DailyCheckIn]{
	{"headache", func(c *DailyCheckIn) *bool { return c.Headache }},
	{"nausea", func(c *DailyCheckIn) *bool { return c.Nausea }},
	{"dizziness", func(c *DailyCheckIn) *bool { return c.Dizziness }},
	{"fatigue", func(c *DailyCheckIn) *bool { return c.Fatigue }},
	{"insomnia", func(c *DailyCheckIn) *bool { return c.Insomnia }},
	{"palpitations", func(c *DailyCheckIn) *bool { return c.Palpitations }},
	{"shortness_of_breath", func(c *DailyCheckIn) *bool { return c.ShortnessOfBreath }},
	{"took_medication", func(c *DailyCheckIn) *bool { return c.TookMedication }},
}

// MapDailyCheckIn emits a Measurement per answered numeric field and an
// Observation per symptom flag that is set to true.
func MapDailyCheckIn(c *DailyCheckIn, personID int64, seq *omop.Sequencer, concepts *omop.ConceptResolver) ([]omop.Row, error) {
	if c.CheckInDate.IsZero() {
		return nil, missingDate(EntityDailyCheckIn, c.ID, "check_in_date")
	}
	at := omop.Midnight(c.CheckInDate)

	out, err := mapNumericFields(c, checkInMeasures, EntityDailyCheckIn, personID, at, omop.TypePatientSelfReport, seq, concepts)
	if err != nil {
		return nil, err
	}

	for _, f := range checkInFlags {
		v := f.value(c)
		if v == nil || !*v {
			continue
		}
		key := string(EntityDailyCheckIn) + "." + f.key
		obs, err := newFlagObservation(seq, personID, concepts.Lookup(omop.DomainObservation, key), at, key)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, nil
}

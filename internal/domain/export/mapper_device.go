package export

import (
	"strings"

	"github.com/ehr/omopexport/internal/platform/omop"
)

var passiveHealthMeasures = []numericField[*PassiveHealthSnapshot]{
	{"heart_rate_avg", func(s *PassiveHealthSnapshot) *float64 { return s.HeartRateAvg }},
	{"resting_heart_rate", func(s *PassiveHealthSnapshot) *float64 { return s.RestingHeartRate }},
	{"hrv_ms", func(s *PassiveHealthSnapshot) *float64 { return s.HRVMs }},
	{"steps", func(s *PassiveHealthSnapshot) *float64 { return s.Steps }},
	{"active_minutes", func(s *PassiveHealthSnapshot) *float64 { return s.ActiveMinutes }},
	{"sleep_minutes", func(s *PassiveHealthSnapshot) *float64 { return s.SleepMinutes }},
	{"spo2_avg", func(s *PassiveHealthSnapshot) *float64 { return s.SpO2Avg }},
	{"respiratory_rate", func(s *PassiveHealthSnapshot) *float64 { return s.RespiratoryRate }},
}

// passiveHealthKeyPrefix is shorter than the entity name used for its
// high-water mark.
const passiveHealthKeyPrefix EntityType = "passive_health"

// MapPassiveHealthSnapshot emits a Measurement per reported metric and, when
// the source device is known, one same-day DeviceExposure.
func MapPassiveHealthSnapshot(s *PassiveHealthSnapshot, personID int64, seq *omop.Sequencer, concepts *omop.ConceptResolver) ([]omop.Row, error) {
	if s.SnapshotDate.IsZero() {
		return nil, missingDate(EntityPassiveHealth, s.ID, "snapshot_date")
	}
	day := omop.Midnight(s.SnapshotDate)

	out, err := mapNumericFields(s, passiveHealthMeasures, passiveHealthKeyPrefix, personID, day, omop.TypeDeviceDerived, seq, concepts)
	if err != nil {
		return nil, err
	}

	deviceType := strings.TrimSpace(s.DeviceType)
	if deviceType == "" {
		return out, nil
	}
	id, err := seq.Next(personID, omop.TableDeviceExposure)
	if err != nil {
		return nil, err
	}
	end := day
	out = append(out, omop.DeviceExposure{
		DeviceExposureID: id,
		PersonID:         personID,
		ConceptID:        concepts.Lookup(omop.DomainDevice, deviceType).ID,
		Start:            day,
		End:              &end,
		TypeConceptID:    omop.TypeDeviceDerived,
		SourceValue:      strings.TrimSpace(deviceType + " " + s.DeviceModel),
	})
	return out, nil
}

package omop

// Unit concepts shared by the measurement entries below.
var (
	unitScore     = Concept{Unit: "{score}", UnitConceptID: 44777566}
	unitHour      = Concept{Unit: "h", UnitConceptID: 8505}
	unitMinute    = Concept{Unit: "min", UnitConceptID: 8550}
	unitPerMinute = Concept{Unit: "/min", UnitConceptID: 8541}
	unitPercent   = Concept{Unit: "%", UnitConceptID: 8554}
	unitMillisec  = Concept{Unit: "ms", UnitConceptID: 9593}
	unitCount     = Concept{Unit: "{count}", UnitConceptID: 8510}
	unitCups      = Concept{Unit: "{cups}", UnitConceptID: 8510}
)

func loinc(id int64, code, name string, unit Concept) Concept {
	return Concept{ID: id, Code: code, Vocabulary: "LOINC", Name: name, Unit: unit.Unit, UnitConceptID: unit.UnitConceptID}
}

func snomed(id int64, code, name string) Concept {
	return Concept{ID: id, Code: code, Vocabulary: "SNOMED", Name: name}
}

func rxnorm(id int64, code, name string) Concept {
	return Concept{ID: id, Code: code, Vocabulary: "RxNorm", Name: name}
}

// Source keys: daily check-in and wearable fields use "<entity>.<field>",
// assessments use "assessment.<instrument>", flags use "<entity>.<flag>".
var defaultConceptTable = map[Domain]map[string]Concept{
	DomainGender: {
		"male":    {ID: 8507, Code: "M", Vocabulary: "Gender", Name: "MALE"},
		"female":  {ID: 8532, Code: "F", Vocabulary: "Gender", Name: "FEMALE"},
		"other":   {ID: 8521, Code: "O", Vocabulary: "Gender", Name: "OTHER"},
		"unknown": {ID: 8551, Code: "U", Vocabulary: "Gender", Name: "UNKNOWN"},
	},
	DomainMeasurement: {
		"daily_checkin.mood":               loinc(40758426, "72169-6", "Mood self-rating", unitScore),
		"daily_checkin.energy":             loinc(40758427, "72170-4", "Energy level self-rating", unitScore),
		"daily_checkin.anxiety":            loinc(40758428, "72171-2", "Anxiety self-rating", unitScore),
		"daily_checkin.stress":             loinc(40758429, "72172-0", "Perceived stress self-rating", unitScore),
		"daily_checkin.pain_level":         loinc(43055141, "72514-3", "Pain severity 0-10 verbal numeric rating", unitScore),
		"daily_checkin.sleep_hours":        loinc(40762634, "65968-6", "Sleep duration", unitHour),
		"daily_checkin.sleep_quality":      loinc(40758430, "72173-8", "Sleep quality self-rating", unitScore),
		"daily_checkin.appetite":           loinc(40758431, "72174-6", "Appetite self-rating", unitScore),
		"daily_checkin.focus":              loinc(40758432, "72175-3", "Concentration self-rating", unitScore),
		"daily_checkin.social_interaction": loinc(40758433, "72176-1", "Social interaction self-rating", unitScore),
		"daily_checkin.exercise_minutes":   loinc(40771525, "55411-3", "Exercise duration", unitMinute),
		"daily_checkin.water_intake_cups":  loinc(40771526, "63574-4", "Fluid intake oral", unitCups),

		"assessment.PHQ-9":   loinc(3042932, "44261-6", "PHQ-9 total score", unitScore),
		"assessment.PHQ-2":   loinc(3042924, "55758-7", "PHQ-2 total score", unitScore),
		"assessment.GAD-7":   loinc(40483198, "70274-6", "GAD-7 total score", unitScore),
		"assessment.PCL-5":   loinc(40758434, "89204-2", "PCL-5 total score", unitScore),
		"assessment.AUDIT-C": loinc(3046817, "75626-2", "AUDIT-C total score", unitScore),
		"assessment.WHO-5":   loinc(40758435, "89205-9", "WHO-5 wellbeing index", unitScore),

		"passive_health.heart_rate_avg":     loinc(3027018, "8867-4", "Heart rate", unitPerMinute),
		"passive_health.resting_heart_rate": loinc(3001376, "40443-4", "Heart rate resting", unitPerMinute),
		"passive_health.hrv_ms":             loinc(40771527, "80404-7", "R-R interval SDNN", unitMillisec),
		"passive_health.steps":              loinc(40771528, "41950-7", "Number of steps in 24 hour measured", unitCount),
		"passive_health.active_minutes":     loinc(40771529, "55411-3", "Physical activity duration", unitMinute),
		"passive_health.sleep_minutes":      loinc(40771530, "93832-4", "Sleep duration", unitMinute),
		"passive_health.spo2_avg":           loinc(40762499, "59408-5", "Oxygen saturation by pulse oximetry", unitPercent),
		"passive_health.respiratory_rate":   loinc(3024171, "9279-1", "Respiratory rate", unitPerMinute),
	},
	DomainObservation: {
		"daily_checkin.headache":            snomed(378253, "25064002", "Headache"),
		"daily_checkin.nausea":              snomed(31967, "422587007", "Nausea"),
		"daily_checkin.dizziness":           snomed(4223938, "404640003", "Dizziness"),
		"daily_checkin.fatigue":             snomed(4223659, "84229001", "Fatigue"),
		"daily_checkin.insomnia":            snomed(436962, "193462001", "Insomnia"),
		"daily_checkin.palpitations":        snomed(315078, "80313002", "Palpitations"),
		"daily_checkin.shortness_of_breath": snomed(312437, "267036007", "Dyspnea"),
		"daily_checkin.took_medication":     snomed(4145513, "182834008", "Drug therapy adherent"),

		"assessment.PHQ-9.severity": snomed(40758436, "720433000", "PHQ-9 severity category"),
		"assessment.GAD-7.severity": snomed(40758437, "720434006", "GAD-7 severity category"),
		"assessment.PCL-5.severity": snomed(40758438, "720435007", "PCL-5 severity category"),
	},
	DomainDrug: {
		"36437":  rxnorm(739138, "36437", "sertraline"),
		"4493":   rxnorm(755695, "4493", "fluoxetine"),
		"321988": rxnorm(715939, "321988", "escitalopram"),
		"42347":  rxnorm(750982, "42347", "bupropion"),
		"6809":   rxnorm(1503297, "6809", "metformin"),
		"29046":  rxnorm(1308216, "29046", "lisinopril"),
		"83367":  rxnorm(1545958, "83367", "atorvastatin"),
		"10582":  rxnorm(1501700, "10582", "levothyroxine"),
		"51272":  rxnorm(766529, "51272", "quetiapine"),
		"6448":   rxnorm(751246, "6448", "lithium"),
		"37418":  rxnorm(1140643, "37418", "sumatriptan"),
		"5640":   rxnorm(1177480, "5640", "ibuprofen"),
	},
	DomainCondition: {
		"F32.9":   snomed(440383, "35489007", "Depressive disorder"),
		"F33.1":   snomed(432285, "191616006", "Recurrent depression"),
		"F41.1":   snomed(434613, "21897009", "Generalized anxiety disorder"),
		"F41.9":   snomed(442077, "197480006", "Anxiety disorder"),
		"F43.10":  snomed(436676, "47505003", "Posttraumatic stress disorder"),
		"F31.9":   snomed(436665, "13746004", "Bipolar disorder"),
		"F51.01":  snomed(436962, "193462001", "Insomnia"),
		"E11.9":   snomed(201826, "44054006", "Type 2 diabetes mellitus"),
		"I10":     snomed(320128, "38341003", "Essential hypertension"),
		"G43.909": snomed(318736, "37796009", "Migraine"),
		"J45.909": snomed(317009, "195967001", "Asthma"),
		"E78.5":   snomed(432867, "55822004", "Hyperlipidemia"),
	},
	DomainConditionStatus: {
		"active":      {ID: 32893, Code: "OMOP4976972", Vocabulary: "Condition Status", Name: "Confirmed diagnosis"},
		"confirmed":   {ID: 32893, Code: "OMOP4976972", Vocabulary: "Condition Status", Name: "Confirmed diagnosis"},
		"provisional": {ID: 32899, Code: "OMOP4976978", Vocabulary: "Condition Status", Name: "Preliminary diagnosis"},
	},
	DomainVisit: {
		"in_person":  {ID: 9202, Code: "OP", Vocabulary: "Visit", Name: "Outpatient Visit"},
		"telehealth": {ID: 5083, Code: "02", Vocabulary: "CMS Place of Service", Name: "Telehealth"},
		"phone":      {ID: 5083, Code: "02", Vocabulary: "CMS Place of Service", Name: "Telehealth"},
		"home_visit": {ID: 581476, Code: "HE", Vocabulary: "Visit", Name: "Home Visit"},
	},
	DomainDevice: {
		"apple_watch": snomed(45759930, "706767009", "Wearable activity monitor"),
		"fitbit":      snomed(45759930, "706767009", "Wearable activity monitor"),
		"garmin":      snomed(45759930, "706767009", "Wearable activity monitor"),
		"oura":        snomed(45759930, "706767009", "Wearable activity monitor"),
		"phone":       snomed(45768171, "702696006", "Smartphone"),
	},
}

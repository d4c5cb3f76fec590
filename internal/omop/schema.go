// Package omop defines the output row shapes of the OMOP CDM tables this
// pipeline produces and a parquet writer for them. Dates are stored as
// days since the Unix epoch, datetimes as milliseconds.
package omop

import "time"

// Table names, as written to <out_dir>/<name>.parquet.
const (
	TablePerson              = "person"
	TableVisitOccurrence     = "visit_occurrence"
	TableConditionOccurrence = "condition_occurrence"
	TableMeasurement         = "measurement"
	TableDrugExposure        = "drug_exposure"
	TableProcedureOccurrence = "procedure_occurrence"
	TableObservationPeriod   = "observation_period"
	TableProvider            = "provider"
	TableLocation            = "location"
	TableDeath               = "death"
	TableCohort              = "cohort"
)

// Date converts a time to epoch days, or nil for the zero time.
func Date(t time.Time) *int32 {
	if t.IsZero() {
		return nil
	}
	days := int32(t.Unix() / 86400)
	return &days
}

// Datetime converts a time to epoch milliseconds, or nil for the zero time.
func Datetime(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// OptInt64 returns nil for zero, used for optional foreign keys.
func OptInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

// OptString returns nil for the empty string.
func OptString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type PersonRow struct {
	PersonID           int64   `parquet:"person_id"`
	GenderConceptID    int64   `parquet:"gender_concept_id"`
	YearOfBirth        int32   `parquet:"year_of_birth"`
	MonthOfBirth       *int32  `parquet:"month_of_birth,optional"`
	DayOfBirth         *int32  `parquet:"day_of_birth,optional"`
	BirthDatetime      *int64  `parquet:"birth_datetime,optional"`
	RaceConceptID      int64   `parquet:"race_concept_id"`
	EthnicityConceptID int64   `parquet:"ethnicity_concept_id"`
	LocationID         *int64  `parquet:"location_id,optional"`
	ProviderID         *int64  `parquet:"provider_id,optional"`
	PersonSourceValue  *string `parquet:"person_source_value,optional"`
	GenderSourceValue  *string `parquet:"gender_source_value,optional"`
}

type VisitOccurrenceRow struct {
	VisitOccurrenceID  int64   `parquet:"visit_occurrence_id"`
	PersonID           int64   `parquet:"person_id"`
	VisitConceptID     int64   `parquet:"visit_concept_id"`
	VisitStartDate     *int32  `parquet:"visit_start_date,optional"`
	VisitStartDatetime *int64  `parquet:"visit_start_datetime,optional"`
	VisitEndDate       *int32  `parquet:"visit_end_date,optional"`
	VisitEndDatetime   *int64  `parquet:"visit_end_datetime,optional"`
	VisitTypeConceptID int64   `parquet:"visit_type_concept_id"`
	ProviderID         *int64  `parquet:"provider_id,optional"`
	VisitSourceValue   *string `parquet:"visit_source_value,optional"`
}

type ConditionOccurrenceRow struct {
	ConditionOccurrenceID    int64   `parquet:"condition_occurrence_id"`
	PersonID                 int64   `parquet:"person_id"`
	ConditionConceptID       int64   `parquet:"condition_concept_id"`
	ConditionStartDate       *int32  `parquet:"condition_start_date,optional"`
	ConditionStartDatetime   *int64  `parquet:"condition_start_datetime,optional"`
	ConditionEndDate         *int32  `parquet:"condition_end_date,optional"`
	ConditionEndDatetime     *int64  `parquet:"condition_end_datetime,optional"`
	ConditionTypeConceptID   int64   `parquet:"condition_type_concept_id"`
	ProviderID               *int64  `parquet:"provider_id,optional"`
	VisitOccurrenceID        *int64  `parquet:"visit_occurrence_id,optional"`
	ConditionSourceValue     *string `parquet:"condition_source_value,optional"`
	ConditionSourceConceptID int64   `parquet:"condition_source_concept_id"`
}

type MeasurementRow struct {
	MeasurementID              int64    `parquet:"measurement_id"`
	PersonID                   int64    `parquet:"person_id"`
	MeasurementConceptID       int64    `parquet:"measurement_concept_id"`
	MeasurementDate            *int32   `parquet:"measurement_date,optional"`
	MeasurementDatetime        *int64   `parquet:"measurement_datetime,optional"`
	MeasurementTypeConceptID   int64    `parquet:"measurement_type_concept_id"`
	ValueAsNumber              *float64 `parquet:"value_as_number,optional"`
	UnitSourceValue            *string  `parquet:"unit_source_value,optional"`
	ProviderID                 *int64   `parquet:"provider_id,optional"`
	VisitOccurrenceID          *int64   `parquet:"visit_occurrence_id,optional"`
	MeasurementSourceValue     *string  `parquet:"measurement_source_value,optional"`
	MeasurementSourceConceptID int64    `parquet:"measurement_source_concept_id"`
}

type DrugExposureRow struct {
	DrugExposureID            int64   `parquet:"drug_exposure_id"`
	PersonID                  int64   `parquet:"person_id"`
	DrugConceptID             int64   `parquet:"drug_concept_id"`
	DrugExposureStartDate     *int32  `parquet:"drug_exposure_start_date,optional"`
	DrugExposureStartDatetime *int64  `parquet:"drug_exposure_start_datetime,optional"`
	DrugExposureEndDate       *int32  `parquet:"drug_exposure_end_date,optional"`
	DrugExposureEndDatetime   *int64  `parquet:"drug_exposure_end_datetime,optional"`
	DrugTypeConceptID         int64   `parquet:"drug_type_concept_id"`
	ProviderID                *int64  `parquet:"provider_id,optional"`
	VisitOccurrenceID         *int64  `parquet:"visit_occurrence_id,optional"`
	DrugSourceValue           *string `parquet:"drug_source_value,optional"`
	DrugSourceConceptID       int64   `parquet:"drug_source_concept_id"`
}

type ProcedureOccurrenceRow struct {
	ProcedureOccurrenceID    int64   `parquet:"procedure_occurrence_id"`
	PersonID                 int64   `parquet:"person_id"`
	ProcedureConceptID       int64   `parquet:"procedure_concept_id"`
	ProcedureDate            *int32  `parquet:"procedure_date,optional"`
	ProcedureDatetime        *int64  `parquet:"procedure_datetime,optional"`
	ProcedureTypeConceptID   int64   `parquet:"procedure_type_concept_id"`
	ProviderID               *int64  `parquet:"provider_id,optional"`
	VisitOccurrenceID        *int64  `parquet:"visit_occurrence_id,optional"`
	ProcedureSourceValue     *string `parquet:"procedure_source_value,optional"`
	ProcedureSourceConceptID int64   `parquet:"procedure_source_concept_id"`
}

type ObservationPeriodRow struct {
	ObservationPeriodID        int64  `parquet:"observation_period_id"`
	PersonID                   int64  `parquet:"person_id"`
	ObservationPeriodStartDate *int32 `parquet:"observation_period_start_date,optional"`
	ObservationPeriodEndDate   *int32 `parquet:"observation_period_end_date,optional"`
	PeriodTypeConceptID        int64  `parquet:"period_type_concept_id"`
}

type ProviderRow struct {
	ProviderID          int64   `parquet:"provider_id"`
	ProviderName        *string `parquet:"provider_name,optional"`
	SpecialtyConceptID  int64   `parquet:"specialty_concept_id"`
	CareSiteID          *int64  `parquet:"care_site_id,optional"`
	ProviderSourceValue *string `parquet:"provider_source_value,optional"`
}

type LocationRow struct {
	LocationID          int64   `parquet:"location_id"`
	Address1            *string `parquet:"address_1,optional"`
	City                *string `parquet:"city,optional"`
	Zip                 *string `parquet:"zip,optional"`
	County              *string `parquet:"county,optional"`
	LocationSourceValue *string `parquet:"location_source_value,optional"`
}

type DeathRow struct {
	PersonID           int64   `parquet:"person_id"`
	DeathDate          *int32  `parquet:"death_date,optional"`
	DeathDatetime      *int64  `parquet:"death_datetime,optional"`
	DeathTypeConceptID int64   `parquet:"death_type_concept_id"`
	CauseConceptID     int64   `parquet:"cause_concept_id"`
	CauseSourceValue   *string `parquet:"cause_source_value,optional"`
}

type CohortRow struct {
	CohortDefinitionID int64  `parquet:"cohort_definition_id"`
	SubjectID          int64  `parquet:"subject_id"`
	CohortStartDate    *int32 `parquet:"cohort_start_date,optional"`
	CohortEndDate      *int32 `parquet:"cohort_end_date,optional"`
}

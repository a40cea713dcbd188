package ccda

import "encoding/xml"

// CDA namespaces and template identifiers for CCD documents.
const (
	CDANamespace = "urn:hl7-org:v3"
	XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"

	// Document-level template IDs
	OIDUSRealmHeader = "2.16.840.1.113883.10.20.22.1.1"
	OIDCCDDocument   = "2.16.840.1.113883.10.20.22.1.2"

	// Section-level template IDs
	OIDMedicationsSection = "2.16.840.1.113883.10.20.22.2.1.1"
	OIDProblemsSection    = "2.16.840.1.113883.10.20.22.2.5.1"
	OIDResultsSection     = "2.16.840.1.113883.10.20.22.2.3.1"
	OIDPlanOfCareSection  = "2.16.840.1.113883.10.20.22.2.10"
	OIDEncountersSection  = "2.16.840.1.113883.10.20.22.2.22.1"

	// Entry-level template IDs
	OIDMedicationEntry = "2.16.840.1.113883.10.20.22.4.16"
	OIDProblemEntry    = "2.16.840.1.113883.10.20.22.4.4"
	OIDResultEntry     = "2.16.840.1.113883.10.20.22.4.2"
	OIDPlannedActEntry = "2.16.840.1.113883.10.20.22.4.39"
	OIDEncounterEntry  = "2.16.840.1.113883.10.20.22.4.49"

	// LOINC codes identifying the document and its sections
	LOINCSummaryNote = "34133-9"
	LOINCMedications = "10160-0"
	LOINCProblems    = "11450-4"
	LOINCResults     = "30954-2"
	LOINCPlanOfCare  = "18776-5"
	LOINCEncounters  = "46240-8"

	OIDLOINC = "2.16.840.1.113883.6.1"

	// NullFlavorNoInfo marks clinical codes that were not assigned.
	NullFlavorNoInfo = "NI"
)

// ClinicalDocument is the root element of a CDA R2 document.
type ClinicalDocument struct {
	XMLName             xml.Name         `xml:"urn:hl7-org:v3 ClinicalDocument"`
	XSI                 string           `xml:"xmlns:xsi,attr"`
	RealmCode           *Code            `xml:"realmCode,omitempty"`
	TypeID              *TypeID          `xml:"typeId,omitempty"`
	TemplateIDs         []TemplateID     `xml:"templateId,omitempty"`
	ID                  *InstanceID      `xml:"id,omitempty"`
	Code                *Code            `xml:"code,omitempty"`
	Title               string           `xml:"title,omitempty"`
	EffectiveTime       *TimeValue       `xml:"effectiveTime,omitempty"`
	ConfidentialityCode *Code            `xml:"confidentialityCode,omitempty"`
	LanguageCode        *Code            `xml:"languageCode,omitempty"`
	RecordTarget        *RecordTarget    `xml:"recordTarget,omitempty"`
	Author              *Author          `xml:"author,omitempty"`
	Custodian           *Custodian       `xml:"custodian,omitempty"`
	DocumentationOf     *DocumentationOf `xml:"documentationOf,omitempty"`
	Component           *Component       `xml:"component,omitempty"`
}

// TypeID identifies the CDA R2 schema.
type TypeID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr"`
}

type TemplateID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr,omitempty"`
}

// InstanceID is a unique instance identifier.
type InstanceID struct {
	Root       string `xml:"root,attr,omitempty"`
	Extension  string `xml:"extension,attr,omitempty"`
	NullFlavor string `xml:"nullFlavor,attr,omitempty"`
}

// Code is a coded value. Clinical entries carry only a NullFlavor and the
// source wording in OriginalText.
type Code struct {
	Code           string `xml:"code,attr,omitempty"`
	CodeSystem     string `xml:"codeSystem,attr,omitempty"`
	CodeSystemName string `xml:"codeSystemName,attr,omitempty"`
	DisplayName    string `xml:"displayName,attr,omitempty"`
	NullFlavor     string `xml:"nullFlavor,attr,omitempty"`
	OriginalText   string `xml:"originalText,omitempty"`
}

// TimeValue holds a time stamp in HL7 format (YYYYMMDD or YYYYMMDDHHmmss).
type TimeValue struct {
	Value      string `xml:"value,attr,omitempty"`
	NullFlavor string `xml:"nullFlavor,attr,omitempty"`
}

// TimeRange is an effectiveTime interval.
type TimeRange struct {
	Low  *TimeValue `xml:"low,omitempty"`
	High *TimeValue `xml:"high,omitempty"`
}

type RecordTarget struct {
	PatientRole *PatientRole `xml:"patientRole,omitempty"`
}

// PatientRole identifies the patient. Scanned documents carry no verified
// demographics, so only a null identifier is emitted.
type PatientRole struct {
	IDs []InstanceID `xml:"id,omitempty"`
}

type Author struct {
	Time           *TimeValue      `xml:"time,omitempty"`
	AssignedAuthor *AssignedAuthor `xml:"assignedAuthor,omitempty"`
}

type AssignedAuthor struct {
	ID                      *InstanceID      `xml:"id,omitempty"`
	AssignedAuthoringDevice *AuthoringDevice `xml:"assignedAuthoringDevice,omitempty"`
	RepresentedOrganization *Organization    `xml:"representedOrganization,omitempty"`
}

type AuthoringDevice struct {
	SoftwareName string `xml:"softwareName,omitempty"`
}

type Organization struct {
	IDs   []InstanceID `xml:"id,omitempty"`
	Names []string     `xml:"name,omitempty"`
}

type Custodian struct {
	AssignedCustodian *AssignedCustodian `xml:"assignedCustodian,omitempty"`
}

type AssignedCustodian struct {
	RepresentedCustodianOrganization *Organization `xml:"representedCustodianOrganization,omitempty"`
}

// DocumentationOf records the span of visits documented.
type DocumentationOf struct {
	ServiceEvent *ServiceEvent `xml:"serviceEvent,omitempty"`
}

type ServiceEvent struct {
	ClassCode     string     `xml:"classCode,attr,omitempty"`
	EffectiveTime *TimeRange `xml:"effectiveTime,omitempty"`
}

type Component struct {
	StructuredBody *StructuredBody `xml:"structuredBody,omitempty"`
}

type StructuredBody struct {
	Components []SectionComponent `xml:"component,omitempty"`
}

type SectionComponent struct {
	Section *Section `xml:"section,omitempty"`
}

// Section is a CDA section with template, code, narrative and entries.
type Section struct {
	TemplateIDs []TemplateID `xml:"templateId,omitempty"`
	Code        *Code        `xml:"code,omitempty"`
	Title       string       `xml:"title,omitempty"`
	Text        *Narrative   `xml:"text,omitempty"`
	Entries     []Entry      `xml:"entry,omitempty"`
}

// Narrative is the human-readable block of a section.
type Narrative struct {
	Table     *NarrativeTable `xml:"table,omitempty"`
	Paragraph string          `xml:"paragraph,omitempty"`
}

type NarrativeTable struct {
	Thead *NarrativeThead `xml:"thead,omitempty"`
	Tbody *NarrativeTbody `xml:"tbody,omitempty"`
}

type NarrativeThead struct {
	Tr *NarrativeTr `xml:"tr,omitempty"`
}

type NarrativeTbody struct {
	Trs []NarrativeTr `xml:"tr,omitempty"`
}

type NarrativeTr struct {
	Ths []string `xml:"th,omitempty"`
	Tds []string `xml:"td,omitempty"`
}

// Entry is a CDA entry element. Exactly one of its children is set.
type Entry struct {
	TypeCode                string                   `xml:"typeCode,attr,omitempty"`
	Act                     *Act                     `xml:"act,omitempty"`
	SubstanceAdministration *SubstanceAdministration `xml:"substanceAdministration,omitempty"`
	Observation             *ObservationEntry        `xml:"observation,omitempty"`
	Encounter               *EncounterEntry          `xml:"encounter,omitempty"`
}

type Act struct {
	ClassCode     string       `xml:"classCode,attr,omitempty"`
	MoodCode      string       `xml:"moodCode,attr,omitempty"`
	TemplateIDs   []TemplateID `xml:"templateId,omitempty"`
	IDs           []InstanceID `xml:"id,omitempty"`
	Code          *Code        `xml:"code,omitempty"`
	StatusCode    *Code        `xml:"statusCode,omitempty"`
	EffectiveTime *TimeRange   `xml:"effectiveTime,omitempty"`
}

type ObservationEntry struct {
	ClassCode      string       `xml:"classCode,attr,omitempty"`
	MoodCode       string       `xml:"moodCode,attr,omitempty"`
	TemplateIDs    []TemplateID `xml:"templateId,omitempty"`
	IDs            []InstanceID `xml:"id,omitempty"`
	Code           *Code        `xml:"code,omitempty"`
	Text           string       `xml:"text,omitempty"`
	StatusCode     *Code        `xml:"statusCode,omitempty"`
	EffectiveTime  *TimeRange   `xml:"effectiveTime,omitempty"`
	Value          *Value       `xml:"value,omitempty"`
	Interpretation *Code        `xml:"interpretationCode,omitempty"`
}

// Value is a typed observation value.
type Value struct {
	Type       string `xml:"xsi:type,attr,omitempty"`
	Value      string `xml:"value,attr,omitempty"`
	Unit       string `xml:"unit,attr,omitempty"`
	NullFlavor string `xml:"nullFlavor,attr,omitempty"`
	Text       string `xml:",chardata"`
}

type SubstanceAdministration struct {
	ClassCode     string       `xml:"classCode,attr,omitempty"`
	MoodCode      string       `xml:"moodCode,attr,omitempty"`
	TemplateIDs   []TemplateID `xml:"templateId,omitempty"`
	IDs           []InstanceID `xml:"id,omitempty"`
	Text          string       `xml:"text,omitempty"`
	StatusCode    *Code        `xml:"statusCode,omitempty"`
	EffectiveTime *TimeRange   `xml:"effectiveTime,omitempty"`
	RouteCode     *Code        `xml:"routeCode,omitempty"`
	Consumable    *Consumable  `xml:"consumable,omitempty"`
}

type Consumable struct {
	ManufacturedProduct *ManufacturedProduct `xml:"manufacturedProduct,omitempty"`
}

type ManufacturedProduct struct {
	ManufacturedMaterial *ManufacturedMaterial `xml:"manufacturedMaterial,omitempty"`
}

type ManufacturedMaterial struct {
	Code *Code `xml:"code,omitempty"`
}

type EncounterEntry struct {
	ClassCode     string       `xml:"classCode,attr,omitempty"`
	MoodCode      string       `xml:"moodCode,attr,omitempty"`
	TemplateIDs   []TemplateID `xml:"templateId,omitempty"`
	IDs           []InstanceID `xml:"id,omitempty"`
	Code          *Code        `xml:"code,omitempty"`
	EffectiveTime *TimeRange   `xml:"effectiveTime,omitempty"`
}

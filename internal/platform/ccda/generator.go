package ccda

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/visitrecon/internal/domain/record"
)

// DocumentData is the reconciled content rendered into a CCD.
type DocumentData struct {
	DocumentID  string
	SourceName  string
	ProcessedAt time.Time
	Visits      []record.ReconciledVisit
}

// Generator creates CCD documents from reconciled visits. It is safe for
// concurrent use because it holds only immutable configuration.
type Generator struct {
	orgName string
	orgOID  string
}

func NewGenerator(orgName, orgOID string) *Generator {
	return &Generator{orgName: orgName, orgOID: orgOID}
}

// GenerateCCD renders data as CCD XML. Entries carry the extracted wording
// and source pages only; no vocabulary codes are assigned.
func (g *Generator) GenerateCCD(data *DocumentData) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("ccda: document data is nil")
	}
	if data.DocumentID == "" {
		return nil, fmt.Errorf("ccda: document id is required")
	}

	output, err := xml.MarshalIndent(g.buildDocument(data), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ccda: failed to marshal XML: %w", err)
	}

	header := []byte(xml.Header)
	result := make([]byte, len(header)+len(output))
	copy(result, header)
	copy(result[len(header):], output)
	return result, nil
}

func (g *Generator) buildDocument(data *DocumentData) *ClinicalDocument {
	effective := data.ProcessedAt.UTC()
	title := "Reconciled Visit Summary"
	if data.SourceName != "" {
		title += ": " + data.SourceName
	}

	doc := &ClinicalDocument{
		XSI:       XSINamespace,
		RealmCode: &Code{Code: "US"},
		TypeID: &TypeID{
			Root:      "2.16.840.1.113883.1.3",
			Extension: "POCD_HD000040",
		},
		TemplateIDs: []TemplateID{
			{Root: OIDUSRealmHeader, Extension: "2015-08-01"},
			{Root: OIDCCDDocument, Extension: "2015-08-01"},
		},
		ID: &InstanceID{Root: g.orgOID, Extension: data.DocumentID},
		Code: &Code{
			Code:           LOINCSummaryNote,
			CodeSystem:     OIDLOINC,
			CodeSystemName: "LOINC",
			DisplayName:    "Summarization of Episode Note",
		},
		Title:         title,
		EffectiveTime: &TimeValue{Value: formatHL7Time(effective)},
		ConfidentialityCode: &Code{
			Code:       "N",
			CodeSystem: "2.16.840.1.113883.5.25",
		},
		LanguageCode: &Code{Code: "en-US"},
		RecordTarget: &RecordTarget{
			PatientRole: &PatientRole{IDs: []InstanceID{{NullFlavor: "UNK"}}},
		},
		Author:          g.buildAuthor(effective),
		Custodian:       g.buildCustodian(),
		DocumentationOf: buildDocumentationOf(data.Visits),
	}

	sections := g.buildSections(data.Visits)
	components := make([]SectionComponent, len(sections))
	for i := range sections {
		components[i] = SectionComponent{Section: &sections[i]}
	}
	doc.Component = &Component{StructuredBody: &StructuredBody{Components: components}}
	return doc
}

func (g *Generator) buildAuthor(now time.Time) *Author {
	return &Author{
		Time: &TimeValue{Value: formatHL7Time(now)},
		AssignedAuthor: &AssignedAuthor{
			ID: &InstanceID{Root: g.orgOID},
			AssignedAuthoringDevice: &AuthoringDevice{
				SoftwareName: "visitrecon",
			},
			RepresentedOrganization: &Organization{
				IDs:   []InstanceID{{Root: g.orgOID}},
				Names: []string{g.orgName},
			},
		},
	}
}

func (g *Generator) buildCustodian() *Custodian {
	return &Custodian{
		AssignedCustodian: &AssignedCustodian{
			RepresentedCustodianOrganization: &Organization{
				IDs:   []InstanceID{{Root: g.orgOID}},
				Names: []string{g.orgName},
			},
		},
	}
}

// buildDocumentationOf spans the earliest to the latest known visit date.
func buildDocumentationOf(visits []record.ReconciledVisit) *DocumentationOf {
	var low, high *record.Date
	for _, v := range visits {
		if v.VisitDate == nil {
			continue
		}
		if low == nil || v.VisitDate.Before(low.Time) {
			low = v.VisitDate
		}
		if high == nil || v.VisitDate.After(high.Time) {
			high = v.VisitDate
		}
	}
	rng := &TimeRange{
		Low:  &TimeValue{NullFlavor: "UNK"},
		High: &TimeValue{NullFlavor: "UNK"},
	}
	if low != nil {
		rng.Low = &TimeValue{Value: formatHL7Date(*low)}
		rng.High = &TimeValue{Value: formatHL7Date(*high)}
	}
	return &DocumentationOf{ServiceEvent: &ServiceEvent{ClassCode: "PCPR", EffectiveTime: rng}}
}

// buildSections renders the encounter list followed by one section per
// clinical list. Clinical sections with no entries are omitted.
func (g *Generator) buildSections(visits []record.ReconciledVisit) []Section {
	sections := []Section{g.buildEncountersSection(visits)}

	var meds, problems, results, plan int
	for _, v := range visits {
		meds += len(v.Medications)
		problems += len(v.ProblemList)
		results += len(v.Results)
		plan += len(v.Plan)
	}
	if meds > 0 {
		sections = append(sections, g.buildMedicationsSection(visits))
	}
	if problems > 0 {
		sections = append(sections, g.buildProblemsSection(visits))
	}
	if results > 0 {
		sections = append(sections, g.buildResultsSection(visits))
	}
	if plan > 0 {
		sections = append(sections, g.buildPlanOfCareSection(visits))
	}
	return sections
}

// ---- Section Builders ----

func (g *Generator) buildEncountersSection(visits []record.ReconciledVisit) Section {
	section := newSection(OIDEncountersSection, LOINCEncounters, "Encounters")
	if len(visits) == 0 {
		section.Text = &Narrative{Paragraph: "No visits were identified."}
		return section
	}

	headers := []string{"Visit", "Date", "Pages", "Confidence", "Review"}
	rows := make([]NarrativeTr, 0, len(visits))
	entries := make([]Entry, 0, len(visits))
	for _, v := range visits {
		date := ""
		var when *TimeRange
		if v.VisitDate != nil {
			date = v.VisitDate.String()
			when = &TimeRange{Low: &TimeValue{Value: formatHL7Date(*v.VisitDate)}}
		}
		review := "no"
		if v.ManualReviewRequired {
			review = "yes: " + strings.Join(v.ReviewReasons, "; ")
		}
		rows = append(rows, NarrativeTr{Tds: []string{
			v.VisitID, date, formatPages(v.RawSourcePages),
			strconv.FormatFloat(v.ExtractionConfidence, 'f', 2, 64), review,
		}})
		entries = append(entries, Entry{
			TypeCode: "DRIV",
			Encounter: &EncounterEntry{
				ClassCode:     "ENC",
				MoodCode:      "EVN",
				TemplateIDs:   []TemplateID{{Root: OIDEncounterEntry, Extension: "2015-08-01"}},
				IDs:           []InstanceID{{Root: g.orgOID, Extension: v.VisitID}},
				Code:          &Code{NullFlavor: NullFlavorNoInfo, OriginalText: v.VisitID},
				EffectiveTime: when,
			},
		})
	}
	section.Text = buildNarrativeTable(headers, rows)
	section.Entries = entries
	return section
}

func (g *Generator) buildMedicationsSection(visits []record.ReconciledVisit) Section {
	section := newSection(OIDMedicationsSection, LOINCMedications, "Medications")

	headers := []string{"Visit", "Medication", "Dose", "Frequency", "Route", "Pages"}
	var rows []NarrativeTr
	var entries []Entry
	for _, v := range visits {
		for i, m := range v.Medications {
			rows = append(rows, NarrativeTr{Tds: []string{
				v.VisitID, m.Name, m.Dose, m.Frequency, m.Route, formatPages(m.SourcePages),
			}})

			status := "active"
			if m.EndDate != "" {
				status = "completed"
			}
			sa := &SubstanceAdministration{
				ClassCode:     "SBADM",
				MoodCode:      "EVN",
				TemplateIDs:   []TemplateID{{Root: OIDMedicationEntry, Extension: "2014-06-09"}},
				IDs:           []InstanceID{{Root: g.orgOID, Extension: entryID(v.VisitID, "med", i)}},
				Text:          strings.TrimSpace(strings.Join([]string{m.Name, m.Dose, m.Frequency}, " ")),
				StatusCode:    &Code{Code: status},
				EffectiveTime: buildTimeRange(m.StartDate, m.EndDate),
				Consumable: &Consumable{
					ManufacturedProduct: &ManufacturedProduct{
						ManufacturedMaterial: &ManufacturedMaterial{
							Code: &Code{NullFlavor: NullFlavorNoInfo, OriginalText: m.Name},
						},
					},
				},
			}
			if m.Route != "" {
				sa.RouteCode = &Code{NullFlavor: NullFlavorNoInfo, OriginalText: m.Route}
			}
			entries = append(entries, Entry{TypeCode: "DRIV", SubstanceAdministration: sa})
		}
	}
	section.Text = buildNarrativeTable(headers, rows)
	section.Entries = entries
	return section
}

func (g *Generator) buildProblemsSection(visits []record.ReconciledVisit) Section {
	section := newSection(OIDProblemsSection, LOINCProblems, "Problems")

	headers := []string{"Visit", "Problem", "Status", "Onset", "Also Recorded As", "Pages"}
	var rows []NarrativeTr
	var entries []Entry
	for _, v := range visits {
		for i, p := range v.ProblemList {
			rows = append(rows, NarrativeTr{Tds: []string{
				v.VisitID, p.Problem, string(p.Status), p.OnsetDate,
				strings.Join(p.AlternativeRepresentations, "; "), formatPages(p.SourcePages),
			}})
			entries = append(entries, Entry{
				TypeCode: "DRIV",
				Observation: &ObservationEntry{
					ClassCode:     "OBS",
					MoodCode:      "EVN",
					TemplateIDs:   []TemplateID{{Root: OIDProblemEntry, Extension: "2015-08-01"}},
					IDs:           []InstanceID{{Root: g.orgOID, Extension: entryID(v.VisitID, "problem", i)}},
					Code:          &Code{NullFlavor: NullFlavorNoInfo},
					Text:          p.Problem,
					StatusCode:    &Code{Code: "completed"},
					EffectiveTime: buildTimeRange(p.OnsetDate, ""),
					Value:         &Value{Type: "CD", NullFlavor: NullFlavorNoInfo},
				},
			})
		}
	}
	section.Text = buildNarrativeTable(headers, rows)
	section.Entries = entries
	return section
}

func (g *Generator) buildResultsSection(visits []record.ReconciledVisit) Section {
	section := newSection(OIDResultsSection, LOINCResults, "Results")

	headers := []string{"Visit", "Test", "Value", "Unit", "Reference Range", "Flag", "Conflicting Values", "Pages"}
	var rows []NarrativeTr
	var entries []Entry
	for _, v := range visits {
		for i, r := range v.Results {
			rows = append(rows, NarrativeTr{Tds: []string{
				v.VisitID, r.TestName, r.Value.String(), r.Unit, r.ReferenceRange,
				string(r.AbnormalFlag), formatConflicts(r.ValueConflicts), formatPages(r.SourcePages),
			}})

			obs := &ObservationEntry{
				ClassCode:     "OBS",
				MoodCode:      "EVN",
				TemplateIDs:   []TemplateID{{Root: OIDResultEntry, Extension: "2015-08-01"}},
				IDs:           []InstanceID{{Root: g.orgOID, Extension: entryID(v.VisitID, "result", i)}},
				Code:          &Code{NullFlavor: NullFlavorNoInfo, OriginalText: r.TestName},
				StatusCode:    &Code{Code: "completed"},
				EffectiveTime: buildTimeRange(r.TestDate, ""),
				Value:         resultValue(r),
			}
			if r.AbnormalFlag != "" {
				obs.Interpretation = &Code{NullFlavor: NullFlavorNoInfo, OriginalText: string(r.AbnormalFlag)}
			}
			entries = append(entries, Entry{TypeCode: "DRIV", Observation: obs})
		}
	}
	section.Text = buildNarrativeTable(headers, rows)
	section.Entries = entries
	return section
}

func (g *Generator) buildPlanOfCareSection(visits []record.ReconciledVisit) Section {
	section := newSection(OIDPlanOfCareSection, LOINCPlanOfCare, "Plan of Care")

	headers := []string{"Visit", "Action", "Category", "Pages"}
	var rows []NarrativeTr
	var entries []Entry
	for _, v := range visits {
		for i, a := range v.Plan {
			rows = append(rows, NarrativeTr{Tds: []string{
				v.VisitID, a.Action, string(a.Category), formatPages(a.SourcePages),
			}})
			entries = append(entries, Entry{
				TypeCode: "DRIV",
				Act: &Act{
					ClassCode:   "ACT",
					MoodCode:    "INT",
					TemplateIDs: []TemplateID{{Root: OIDPlannedActEntry, Extension: "2014-06-09"}},
					IDs:         []InstanceID{{Root: g.orgOID, Extension: entryID(v.VisitID, "plan", i)}},
					Code:        &Code{NullFlavor: NullFlavorNoInfo, OriginalText: a.Action},
					StatusCode:  &Code{Code: "active"},
				},
			})
		}
	}
	section.Text = buildNarrativeTable(headers, rows)
	section.Entries = entries
	return section
}

// ---- Helpers ----

func newSection(templateID, loincCode, title string) Section {
	return Section{
		TemplateIDs: []TemplateID{{Root: templateID, Extension: "2015-08-01"}},
		Code: &Code{
			Code:           loincCode,
			CodeSystem:     OIDLOINC,
			CodeSystemName: "LOINC",
			DisplayName:    title,
		},
		Title: title,
	}
}

func buildNarrativeTable(headers []string, rows []NarrativeTr) *Narrative {
	return &Narrative{
		Table: &NarrativeTable{
			Thead: &NarrativeThead{Tr: &NarrativeTr{Ths: headers}},
			Tbody: &NarrativeTbody{Trs: rows},
		},
	}
}

// resultValue emits a physical quantity when the value is numeric and a
// string otherwise.
func resultValue(r record.MergedResult) *Value {
	raw := strings.TrimSpace(r.Value.String())
	if raw == "" {
		return &Value{Type: "PQ", NullFlavor: NullFlavorNoInfo}
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		unit := r.Unit
		if unit == "" {
			unit = "1"
		}
		return &Value{Type: "PQ", Value: raw, Unit: unit}
	}
	return &Value{Type: "ST", Text: raw}
}

func entryID(visitID, kind string, i int) string {
	return fmt.Sprintf("%s.%s.%d", visitID, kind, i+1)
}

func formatPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}

func formatConflicts(conflicts []record.ResultConflict) string {
	parts := make([]string, len(conflicts))
	for i, c := range conflicts {
		parts[i] = strings.TrimSpace(fmt.Sprintf("%s %s", c.Value, c.Unit)) + fmt.Sprintf(" (p%d)", c.SourcePage)
	}
	return strings.Join(parts, "; ")
}

func formatHL7Time(t time.Time) string {
	return t.Format("20060102150405") + "+0000"
}

func formatHL7Date(d record.Date) string {
	return d.Format("20060102")
}

// buildTimeRange converts extracted date strings. Unparseable dates are
// left out rather than guessed.
func buildTimeRange(low, high string) *TimeRange {
	var tr TimeRange
	if d, err := record.ParseDate(low); err == nil {
		tr.Low = &TimeValue{Value: formatHL7Date(d)}
	}
	if d, err := record.ParseDate(high); err == nil {
		tr.High = &TimeValue{Value: formatHL7Date(d)}
	}
	if tr.Low == nil && tr.High == nil {
		return nil
	}
	return &tr
}

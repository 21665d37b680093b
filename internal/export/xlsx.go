// Package export renders completed estimate runs to XLSX workbooks for
// adjuster review.
package export

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ridgepoint-claims/claimflow/internal/model"
)

var titleCaser = cases.Title(language.AmericanEnglish)

// WriteEstimate renders the run's estimate to an XLSX workbook at path.
func WriteEstimate(run *model.PipelineRun, path string) error {
	f, err := BuildWorkbook(run)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	return nil
}

// BuildWorkbook builds the estimate workbook in memory. The run must carry
// an estimate result.
func BuildWorkbook(run *model.PipelineRun) (*xlsx.File, error) {
	if run == nil || run.Result == nil {
		return nil, eris.New("export: run has no estimate result")
	}

	f := xlsx.NewFile()
	if err := addSummarySheet(f, run); err != nil {
		return nil, err
	}
	if err := addEstimateSheet(f, run.Result); err != nil {
		return nil, err
	}
	if err := addFollowupSheet(f, run.Result); err != nil {
		return nil, err
	}
	return f, nil
}

func addSummarySheet(f *xlsx.File, run *model.PipelineRun) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	addKV(sheet, "Claim", run.ClaimRef)
	addKV(sheet, "Run ID", run.ID)
	addKV(sheet, "Status", string(run.Status))
	addKV(sheet, "Cause of Loss", run.Context.LossCause)
	addKV(sheet, "Description", run.Context.Description)

	if cls := run.Context.ScopeClassification; cls != nil {
		names := make([]string, len(cls.PrimaryScopes))
		for i, s := range cls.PrimaryScopes {
			names[i] = titleCaser.String(string(s))
		}
		addKV(sheet, "Primary Scopes", strings.Join(names, ", "))
	}

	ov := run.Context.UserOverrides
	grade := ov.QualityGrade
	if grade == "" {
		grade = "standard"
	}
	addKV(sheet, "Quality Grade", grade)
	addKV(sheet, "Overhead & Profit Requested", yesNo(ov.IncludeOP))
	if ov.TaxRate > 0 {
		addKV(sheet, "Tax Rate", fmt.Sprintf("%.2f%%", ov.TaxRate))
	}
	if ov.PriceList != "" {
		addKV(sheet, "Price List", ov.PriceList)
	}

	addKV(sheet, "Scope Groups", fmt.Sprintf("%d", len(run.Result.Estimate)))
	addKV(sheet, "Line Items", fmt.Sprintf("%d", run.Result.LineItemCount()))

	var usage model.TokenUsage
	for _, s := range run.Stages {
		usage.Add(s.TokenUsage)
	}
	addKV(sheet, "Generation Tokens", fmt.Sprintf("%d", usage.Total()))

	if !run.CreatedAt.IsZero() {
		addKV(sheet, "Created", run.CreatedAt.Format("2006-01-02 15:04 MST"))
	}
	return nil
}

func addEstimateSheet(f *xlsx.File, result *model.EstimateResult) error {
	sheet, err := f.AddSheet("Estimate")
	if err != nil {
		return eris.Wrap(err, "export: add estimate sheet")
	}

	addHeaderRow(sheet, "Scope", "Line Code", "Description", "Unit", "Qty", "Qty Basis", "Assumptions")

	for _, group := range result.Estimate {
		scopeName := titleCaser.String(string(group.Scope))
		for _, item := range group.LineItems {
			row := sheet.AddRow()
			row.AddCell().SetString(scopeName)
			row.AddCell().SetString(item.LineCode)
			row.AddCell().SetString(item.Description)
			row.AddCell().SetString(item.Unit)
			row.AddCell().SetFloatWithFormat(item.Qty, "0.00")
			row.AddCell().SetString(string(item.QtyBasis))
			row.AddCell().SetString(item.Assumptions)
		}
	}
	return nil
}

func addFollowupSheet(f *xlsx.File, result *model.EstimateResult) error {
	sheet, err := f.AddSheet("Follow-ups")
	if err != nil {
		return eris.Wrap(err, "export: add follow-ups sheet")
	}

	addHeaderRow(sheet, "Type", "Item")
	for _, info := range result.MissingInfoToFinalize {
		row := sheet.AddRow()
		row.AddCell().SetString("Missing Info")
		row.AddCell().SetString(info)
	}
	for _, q := range result.QuestionsForUser {
		row := sheet.AddRow()
		row.AddCell().SetString("Question")
		row.AddCell().SetString(q)
	}
	return nil
}

func addHeaderRow(sheet *xlsx.Sheet, headers ...string) {
	style := xlsx.NewStyle()
	style.Font.Bold = true
	style.ApplyFont = true

	row := sheet.AddRow()
	for _, h := range headers {
		cell := row.AddCell()
		cell.SetString(h)
		cell.SetStyle(style)
	}
}

func addKV(sheet *xlsx.Sheet, key, value string) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetString(value)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

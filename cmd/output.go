// File: cmd/output.go
package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/engine"
	"github.com/xkilldash9x/tracepoint/internal/orchestrator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	formatText = "text"
	formatJSON = "json"
)

// printer renders command results either as indented JSON or as a short
// human summary.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case formatText, formatJSON:
		return &printer{w: w, format: format}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (want %q or %q)", format, formatText, formatJSON)
	}
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) decision(d schemas.Decision) error {
	if p.format == formatJSON {
		return p.encode(d)
	}
	fmt.Fprintf(p.w, "%s\n", d.Headline)
	fmt.Fprintf(p.w, "Posture: %s  Risk: %.3f  Uncertainty: %.3f  Events: %d\n", d.Posture, d.AggregateRisk, d.UncertaintyLevel, d.EventCount)
	if d.EthicsVeto {
		fmt.Fprintf(p.w, "Ethics veto: %s\n", strings.Join(d.VetoReasons, "; "))
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tKIND\tVALUE\tCONFIDENCE\tEXPLANATION")
	for _, a := range d.Assessments {
		value := fmt.Sprintf("%.3f", a.Value)
		if a.NoSignal {
			value += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", a.Agent, a.Kind, value, a.Confidence, a.Explanation)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, m := range d.MinorityOpinions {
		fmt.Fprintf(p.w, "Minority opinion: %s at %.3f (deviation %.3f)\n", m.Agent, m.Risk, m.Deviation)
	}
	fmt.Fprintf(p.w, "%s\n", d.Justification)
	return nil
}

func (p *printer) summary(s *engine.Summary) error {
	if p.format == formatJSON {
		type row struct {
			IndividualID string                `json:"individual_id"`
			Posture      schemas.Posture       `json:"posture,omitempty"`
			Risk         float64               `json:"risk"`
			Session      string                `json:"session_id,omitempty"`
			Status       schemas.SessionStatus `json:"session_status,omitempty"`
			Outcome      *schemas.Outcome      `json:"outcome,omitempty"`
			Error        string                `json:"error,omitempty"`
		}
		out := struct {
			Evaluated int                     `json:"evaluated"`
			Failed    int                     `json:"failed"`
			Opened    int                     `json:"opened"`
			Resolved  int                     `json:"resolved"`
			Verified  int                     `json:"verified"`
			ByPosture map[schemas.Posture]int `json:"by_posture"`
			Results   []row                   `json:"results"`
		}{s.Evaluated, s.Failed, s.Opened, s.Resolved, s.Verified, s.ByPosture, nil}
		for _, r := range s.Reports {
			x := row{IndividualID: r.IndividualID}
			if r.Err != nil {
				x.Error = r.Err.Error()
			}
			fillRow(r.Result, &x.Posture, &x.Risk, &x.Session, &x.Status)
			if r.Result != nil {
				x.Outcome = r.Result.Outcome
			}
			out.Results = append(out.Results, x)
		}
		return p.encode(out)
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDIVIDUAL\tPOSTURE\tRISK\tSESSION\tSTATUS\tNOTE")
	for _, r := range s.Reports {
		var (
			posture schemas.Posture
			risk    float64
			session string
			status  schemas.SessionStatus
		)
		fillRow(r.Result, &posture, &risk, &session, &status)
		note := ""
		switch {
		case r.Err != nil:
			note = r.Err.Error()
		case r.Result != nil && r.Result.Opened:
			note = "session opened"
		case r.Result != nil && r.Result.Resolved:
			note = "resolved without intervention"
		case r.Result != nil && r.Result.Outcome != nil:
			note = fmt.Sprintf("verified, success %.2f", r.Result.Outcome.SuccessRate)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%s\t%s\t%s\n", r.IndividualID, posture, risk, session, status, note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	postures := make([]string, 0, len(s.ByPosture))
	for k, n := range s.ByPosture {
		postures = append(postures, fmt.Sprintf("%s=%d", k, n))
	}
	sort.Strings(postures)
	fmt.Fprintf(p.w, "\nEvaluated %d, failed %d, opened %d, resolved %d, verified %d [%s]\n",
		s.Evaluated, s.Failed, s.Opened, s.Resolved, s.Verified, strings.Join(postures, " "))
	return nil
}

func fillRow(res *orchestrator.CycleResult, posture *schemas.Posture, risk *float64, session *string, status *schemas.SessionStatus) {
	if res == nil {
		return
	}
	if res.Observation != nil {
		*posture, *risk = res.Observation.Posture, res.Observation.Risk
	}
	if res.Session != nil {
		*session, *status = res.Session.ID, res.Session.Status
	}
}

func (p *printer) plan(plan *schemas.InterventionPlan) error {
	if p.format == formatJSON {
		return p.encode(plan)
	}
	fmt.Fprintf(p.w, "Plan %s: %s\n", plan.ID, plan.ApprovalStatus)
	if plan.ApprovedBy != "" {
		fmt.Fprintf(p.w, "Approved by %s\n", plan.ApprovedBy)
	}
	if plan.RejectionReason != "" {
		fmt.Fprintf(p.w, "Rejected: %s\n", plan.RejectionReason)
	}
	return nil
}

func (p *printer) advance(res *orchestrator.AdvanceResult) error {
	if p.format == formatJSON {
		return p.encode(res)
	}
	fmt.Fprintf(p.w, "Session %s: %s (%d action attempts)\n", res.Session.ID, res.Session.Status, res.Attempted)
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tACTION\tSTATUS\tRETRIES\tERROR")
	for _, a := range res.Actions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%s\n", a.SequenceOrder, a.Title, a.Status, a.RetryCount, a.MaxRetries, a.LastError)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if o := res.Outcome; o != nil {
		fmt.Fprintf(p.w, "Outcome: risk %.3f -> %.3f, success %.3f, effectiveness %.3f\n", o.RiskBefore, o.RiskAfter, o.SuccessRate, o.EffectivenessScore)
	}
	if res.PlanB != nil {
		fmt.Fprintf(p.w, "Follow-up session opened: %s (%s)\n", res.PlanB.ID, res.PlanB.Status)
	}
	return nil
}

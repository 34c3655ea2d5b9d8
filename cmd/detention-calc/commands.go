package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"fleetdetention/internal/detention"
	"fleetdetention/internal/model"
)

type StopTypesCmd struct{}

func (c *StopTypesCmd) Run(ctx *Context) error {
	tw := tabwriter.NewWriter(ctx.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STOP TYPE\tFREE TIME\tWARNING\tREMINDER AFTER")
	for _, st := range detention.StopTypes() {
		p := detention.PolicyFor(st)
		warn := "-"
		if p.WarningBeforeMinutes > 0 {
			warn = fmt.Sprintf("%dm before", p.WarningBeforeMinutes)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st, detention.FormatMinutes(p.DetentionThresholdMinutes), warn, detention.FormatMinutes(p.ReminderAfterStartMinutes))
	}
	fmt.Fprintf(tw, "\nrate: %s/min\n", detention.FormatCost(detention.RatePerMinute))
	return tw.Flush()
}

type EvaluateCmd struct {
	Appointment string `arg:"" help:"Appointment time (RFC 3339)."`
	StopType    string `short:"t" help:"Stop type." default:"regular"`
	Departure   string `short:"d" help:"Departure time (RFC 3339); evaluates a completed stop."`
	At          string `help:"Evaluate at this instant instead of now (RFC 3339)."`
	JSON        bool   `name:"json" help:"Print the snapshot as JSON."`
}

func (c *EvaluateCmd) Run(ctx *Context) error {
	st, err := parseStopType(c.StopType)
	if err != nil {
		return err
	}
	now := ctx.Now()
	if c.At != "" {
		if now, err = time.Parse(time.RFC3339, c.At); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}
	snap := detention.EvaluateRaw(c.Appointment, st, c.Departure, now)
	if c.JSON {
		enc := json.NewEncoder(ctx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	if snap.InvalidTime {
		return fmt.Errorf("appointment or departure time is invalid")
	}
	fmt.Fprintf(ctx.Out, "status:  %s\n", snap.Status)
	fmt.Fprintf(ctx.Out, "display: %s\n", snap.Display)
	if snap.DetentionStartTime != nil {
		fmt.Fprintf(ctx.Out, "starts:  %s\n", snap.DetentionStartTime.Format(time.RFC3339))
	}
	if snap.DetentionMinutes > 0 {
		fmt.Fprintf(ctx.Out, "billed:  %s, %s\n", detention.FormatMinutes(snap.DetentionMinutes), detention.FormatCost(snap.DetentionCostUSD))
	}
	return nil
}

type FinalCmd struct {
	Appointment string `arg:"" help:"Appointment time (RFC 3339)."`
	Departure   string `arg:"" help:"Departure time (RFC 3339)."`
	StopType    string `short:"t" help:"Stop type." default:"regular"`
}

func (c *FinalCmd) Run(ctx *Context) error {
	st, err := parseStopType(c.StopType)
	if err != nil {
		return err
	}
	appt, err := time.Parse(time.RFC3339, c.Appointment)
	if err != nil {
		return fmt.Errorf("invalid appointment: %w", err)
	}
	dep, err := time.Parse(time.RFC3339, c.Departure)
	if err != nil {
		return fmt.Errorf("invalid departure: %w", err)
	}
	if dep.Before(appt) {
		return fmt.Errorf("departure is before appointment")
	}
	f := detention.ComputeFinal(appt, st, dep)
	fmt.Fprintf(ctx.Out, "%s %s\n", detention.FormatMinutes(f.Minutes), detention.FormatCost(f.Cost))
	return nil
}

func parseStopType(s string) (model.StopType, error) {
	st, ok := detention.ParseStopType(s)
	if !ok {
		return "", fmt.Errorf("unknown stop type %q", s)
	}
	return st, nil
}

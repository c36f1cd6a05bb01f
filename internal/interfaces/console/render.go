// Package console renders weight tables for the CLI.
package console

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"weightwire/internal/domain/model"
)

// ANSI color codes
const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiDim   = "\033[2m"
)

// Colorize applies ANSI color to a string.
func Colorize(s, color string) string {
	return color + s + ansiReset
}

func weightColor(ev model.WeightEvent) string {
	switch ev.Weight.Sign() {
	case 1:
		return ansiGreen
	case -1:
		return ansiRed
	default:
		return ansiDim
	}
}

// Weights renders last pointers or history rows as a table.
func Weights(rows []model.WeightEvent) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DT\tSTRATEGY\tSYMBOL\tWEIGHT\tPRICE\tREF")
	for _, ev := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.Dt.Format(model.DtLayout), ev.Strategy, ev.Symbol,
			Colorize(ev.Weight.String(), weightColor(ev)),
			ev.Price.String(), ev.Ref)
	}
	w.Flush()
	return sb.String()
}

// Matrix renders dense matrix rows as a table.
func Matrix(rows []model.MatrixRow) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DT\tSYMBOL\tWEIGHT\tUPDATE_TIME")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			row.Dt.Format(model.DtLayout), row.Symbol,
			row.Weight.String(), row.UpdateTime.Format(model.DtLayout))
	}
	w.Flush()
	return sb.String()
}

// Metas renders strategy metadata listings.
func Metas(metas []model.StrategyMeta) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tBASE_FREQ\tAUTHOR\tOUTSAMPLE_SDT\tUPDATE_TIME\tHEARTBEAT")
	for _, m := range metas {
		hb := "-"
		if !m.Heartbeat.IsZero() {
			hb = m.Heartbeat.Format(model.DtLayout)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Name, m.BaseFreq, m.Author, m.OutsampleSdt,
			m.UpdateTime.Format(model.DtLayout), hb)
	}
	w.Flush()
	return sb.String()
}

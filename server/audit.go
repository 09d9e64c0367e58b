package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/identity"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/storage"
)

var auditHeader = []string{"IP", "Serial", "MAC", "Model", "Last updated"}

func auditRow(p *storage.Printer) []string {
	updated := ""
	if !p.LastUpdated.IsZero() {
		updated = p.LastUpdated.Format("2006-01-02 15:04")
	}
	return []string{p.IPAddress, p.SerialNumber, p.MACAddress, p.Model, updated}
}

// writeAuditTable prints one printer per line, fields separated by " | ".
func writeAuditTable(w io.Writer, printers []*storage.Printer) error {
	for _, p := range printers {
		if _, err := fmt.Fprintln(w, strings.Join(auditRow(p), " | ")); err != nil {
			return err
		}
	}
	return nil
}

// writeAuditCSV writes printers as semicolon separated CSV with a header.
func writeAuditCSV(w io.Writer, printers []*storage.Printer) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(auditHeader); err != nil {
		return err
	}
	for _, p := range printers {
		if err := cw.Write(auditRow(p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report printers that need attention",
	}

	var csvPath string
	macOnly := &cobra.Command{
		Use:   "mac-only",
		Short: "List printers whose last successful poll matched by MAC only",
		Long:  "A MAC_ONLY match means the network interface is known but the reported serial number differs from the record, which usually points at a replaced device or a re-flashed controller.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			printers, err := a.store.ListPrintersByMatchRule(cmd.Context(), string(identity.RuleMACOnly))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(printers) == 0 {
				fmt.Fprintln(out, "No printers matched by MAC only.")
				return nil
			}
			fmt.Fprintf(out, "Found %d printers\n", len(printers))

			if csvPath == "" {
				return writeAuditTable(out, printers)
			}
			f, err := os.Create(csvPath)
			if err != nil {
				return err
			}
			if err := writeAuditCSV(f, printers); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(out, "CSV written to %s\n", csvPath)
			return nil
		},
	}
	macOnly.Flags().StringVar(&csvPath, "csv", "", "write the list to this CSV file instead of stdout")
	cmd.AddCommand(macOnly)
	return cmd
}

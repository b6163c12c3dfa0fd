package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ppiankov/triagewatch/internal/audit"
)

var tailLines int

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent decisions to show")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Decision log operations",
	Long:  "Commands for verifying and inspecting the hash-chained decision log\nwritten by triage and run with --audit-log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of a decision log",
	Long:  "Walks the JSONL decision log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent decisions",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if !result.Valid {
		fmt.Fprintf(cmd.ErrOrStderr(), "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
		os.Exit(1)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "OK: %d decisions verified (%d escalated, %d overridden by procedure)\n", result.Lines, result.Escalations, result.Overrides)
	levels := make([]string, 0, len(result.Levels))
	for l := range result.Levels {
		levels = append(levels, l)
	}
	sort.Strings(levels)
	for _, l := range levels {
		fmt.Fprintf(out, "  %-8s %d\n", l, result.Levels[l])
	}
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read decision log: %w", err)
	}

	start := len(lines) - tailLines
	if start < 0 {
		start = 0
	}

	out := cmd.OutOrStdout()
	for _, line := range lines[start:] {
		var entry audit.Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			fmt.Fprintln(out, line)
			continue
		}
		fmt.Fprintf(out, "%s  %-8s p%-2d %s\n", entry.Timestamp, entry.ThreatLevel, entry.Priority, entry.Summary)
	}
	return nil
}

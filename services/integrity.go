package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"realestate-scraper/models"
	"realestate-scraper/storage"
	"realestate-scraper/utils"
)

// IntegrityService validates the history table after a run. Violations are
// reported, never repaired.
type IntegrityService struct {
	store  storage.HistoryStore
	logger *utils.Logger
}

func NewIntegrityService(store storage.HistoryStore, logger *utils.Logger) *IntegrityService {
	return &IntegrityService{store: store, logger: logger}
}

func (s *IntegrityService) Check(ctx context.Context) (*models.IntegrityReport, error) {
	violations, err := s.store.Violations(ctx)
	if err != nil {
		return nil, fmt.Errorf("integrity: %w", err)
	}

	report := &models.IntegrityReport{
		CheckedAt:  time.Now(),
		Violations: violations,
		ByCheck:    make(map[string]int),
	}
	for _, v := range violations {
		report.ByCheck[v.Check]++
	}

	if report.OK() {
		s.logger.Info("History integrity check passed")
	} else {
		s.logger.Warn("History integrity check found violations", "count", len(violations))
	}
	return report, nil
}

// maxListed caps how many violations of one check are printed.
const maxListed = 10

func (s *IntegrityService) Print(w io.Writer, r *models.IntegrityReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  SCD HISTORY INTEGRITY\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	if r.OK() {
		fmt.Fprintf(w, "  \033[1;32mNo violations found\033[0m\n")
		fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
		return
	}

	checks := make([]string, 0, len(r.ByCheck))
	for c := range r.ByCheck {
		checks = append(checks, c)
	}
	sort.Strings(checks)

	for _, check := range checks {
		fmt.Fprintf(w, "\033[1;33m  %s\033[0m \033[1;31m(%d)\033[0m\n", check, r.ByCheck[check])
		fmt.Fprintf(w, "  %s\n", thin)
		listed := 0
		for _, v := range r.Violations {
			if v.Check != check {
				continue
			}
			if listed == maxListed {
				fmt.Fprintf(w, "  ... and %d more\n", r.ByCheck[check]-maxListed)
				break
			}
			fmt.Fprintf(w, "  [%s] %s\n", v.Source, truncate(v.URL, 60))
			fmt.Fprintf(w, "      %s\n", v.Detail)
			listed++
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
}

// PrintRun writes the summary of one coordinator run.
func PrintRun(w io.Writer, r *models.RunResult) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  SCRAPE RUN %s\033[0m\n", strings.ToUpper(string(r.Source)))
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Run id          : %s\n", r.RunID)
	fmt.Fprintf(w, "  Duration        : %s\n", r.Duration().Round(time.Second))
	fmt.Fprintf(w, "  Batches         : \033[1m%d\033[0m\n", r.Batches)
	fmt.Fprintf(w, "  Pages with ads  : \033[1m%d\033[0m\n", r.Pages)
	fmt.Fprintf(w, "  Listings seen   : \033[1m%d\033[0m\n", r.Seen)
	fmt.Fprintf(w, "  Skipped (no url): %d\n", r.Skipped)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  History\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Inserted  : \033[1;32m%d\033[0m\n", r.Inserted)
	fmt.Fprintf(w, "  Changed   : \033[1;33m%d\033[0m\n", r.Changed)
	fmt.Fprintf(w, "  Unchanged : %d\n", r.Unchanged)
	fmt.Fprintf(w, "  Removed   : \033[1;31m%d\033[0m\n", r.Removed)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// truncate shortens s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

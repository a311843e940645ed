package report

import "time"

// Badge labels attached by Score. Stored alongside the report and surfaced
// to result views.
const (
	BadgeHasReviewer     = "Has Reviewer"
	BadgeCompleteHeader  = "Complete Header"
	BadgeRecent          = "Recent"
	BadgeCompleteContent = "Complete Content"
	BadgeRegion          = "Region Specified"
	BadgeRequirements    = "Includes Requirements"
	BadgeReferences      = "References Cited"
)

// recentWindow is how fresh a modification date must be for the "Recent" badge.
const recentWindow = 365 * 24 * time.Hour

// Score computes the trust score and badge set for a report. It is a pure
// function of the report fields and the supplied evaluation time; the result
// is a weighted sum in [0, 1] (the weights sum to exactly 1.0).
func Score(r *Report, now time.Time) (float64, []string) {
	score := 0.0
	var badges []string

	// Reviewer present (25%).
	if r.Reviewer != "" {
		score += 0.25
		badges = append(badges, BadgeHasReviewer)
	}

	// Header completeness (20%).
	if r.ProjectName != "" && r.ProjectNumber != "" && r.ProgramRegion != "" &&
		r.ProjectLeader != "" && r.Client != "" {
		score += 0.20
		badges = append(badges, BadgeCompleteHeader)
	}

	// Modified within the last year (15%).
	if !r.ModifiedAt.IsZero() && now.Sub(r.ModifiedAt) < recentWindow {
		score += 0.15
		badges = append(badges, BadgeRecent)
	}

	// Content completeness (15%).
	if r.Background != "" && r.ScopeOfWork != "" && r.Deliverables != "" {
		score += 0.15
		badges = append(badges, BadgeCompleteContent)
	}

	// Region present (10%).
	if r.ProgramRegion != "" {
		score += 0.10
		badges = append(badges, BadgeRegion)
	}

	// Assumptions or performance requirements present (10%).
	if r.Assumptions != "" || r.Requirements != "" {
		score += 0.10
		badges = append(badges, BadgeRequirements)
	}

	// Reference documents present (5%).
	if r.References != "" {
		score += 0.05
		badges = append(badges, BadgeReferences)
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, badges
}

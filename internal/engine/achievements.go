package engine

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/lazypower/ltm/internal/gitlog"
	"github.com/lazypower/ltm/internal/model"
)

type achievementRule struct {
	re     *regexp.Regexp
	impact model.Impact
}

// achievementRules are matched against the lowercased commit subject in
// order; the first match decides the impact.
var achievementRules = []achievementRule{
	{regexp.MustCompile(`^add\s+.*(command|feature|module|hook|test)`), model.ImpactHigh},
	{regexp.MustCompile(`^add\s+/\w+`), model.ImpactHigh},
	{regexp.MustCompile(`\b(implement|create|build)\b.*\b(feature|command|module|system|api)\b`), model.ImpactHigh},
	{regexp.MustCompile(`\bcomplete[ds]?\b`), model.ImpactHigh},
	{regexp.MustCompile(`\bfinish(ed|es)?\b`), model.ImpactMedium},

	{regexp.MustCompile(`\bv?\d+\.\d+(\.\d+)?\b`), model.ImpactHigh},
	{regexp.MustCompile(`\bmilestone\b`), model.ImpactHigh},
	{regexp.MustCompile(`\brelease\b`), model.ImpactHigh},
	{regexp.MustCompile(`\blaunch(ed|es|ing)?\b`), model.ImpactHigh},

	{regexp.MustCompile(`\bfix(ed|es)?\b.*\b(critical|major|important)\b`), model.ImpactHigh},
	{regexp.MustCompile(`\bresolve[ds]?\b`), model.ImpactMedium},

	{regexp.MustCompile(`\brefactor(ed|s|ing)?\b`), model.ImpactMedium},
	{regexp.MustCompile(`\bmigrat(e|ed|ion)\b`), model.ImpactHigh},

	{regexp.MustCompile(`\b\d+\s*(tests?|specs?)\s*(pass(ing|ed)?|green)\b`), model.ImpactMedium},
	{regexp.MustCompile(`\b100%\s*(coverage|tests?)\b`), model.ImpactHigh},
	{regexp.MustCompile(`^add\s+tests?\b`), model.ImpactMedium},
}

var skipRules = regexp.MustCompile(`^(wip\b|fixup\b|squash\b|merge\b|revert\b|\[skip|chore\b)`)

// SkipCommit reports whether a commit subject is housekeeping rather than
// work worth remembering.
func SkipCommit(subject string) bool {
	return skipRules.MatchString(strings.ToLower(strings.TrimSpace(subject)))
}

// ClassifyCommit returns the impact of an achievement-like commit subject.
func ClassifyCommit(subject string) (model.Impact, bool) {
	s := strings.ToLower(strings.TrimSpace(subject))
	for _, r := range achievementRules {
		if r.re.MatchString(s) {
			return r.impact, true
		}
	}
	return "", false
}

// AchievementContent is the memory text recorded for a commit.
func AchievementContent(c gitlog.Commit) string {
	return fmt.Sprintf("%s (commit: %s)", c.Subject, c.ShortHash())
}

// AchievementReport summarizes a detection run.
type AchievementReport struct {
	Saved   []model.Memory
	Skipped int
}

// DetectAchievements records achievement-like commits as PROJECT
// ACHIEVEMENTS memories dated at the commit. Commits already recorded (by
// short hash) and housekeeping commits are skipped. With dryRun set the
// memories are built but not saved.
func (e *Engine) DetectAchievements(agent *model.Agent, project *model.Project, commits []gitlog.Commit, dryRun bool) (*AchievementReport, error) {
	if project == nil {
		return nil, fmt.Errorf("detect achievements: a project is required")
	}
	// Oldest first, so each new memory chains onto the previous commit.
	ordered := append([]gitlog.Commit(nil), commits...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	rep := &AchievementReport{}
	for _, c := range ordered {
		if SkipCommit(c.Subject) {
			rep.Skipped++
			continue
		}
		impact, ok := ClassifyCommit(c.Subject)
		if !ok {
			continue
		}

		existing, err := e.DB.Search(agent.ID, c.ShortHash(), project.ID, 1)
		if err != nil {
			return rep, err
		}
		if len(existing) > 0 {
			rep.Skipped++
			continue
		}

		content := AchievementContent(c)
		m := model.Memory{
			AgentID:         agent.ID,
			Region:          model.RegionProject,
			ProjectID:       project.ID,
			Kind:            model.KindAchievements,
			Content:         content,
			OriginalContent: content,
			Impact:          impact,
			Confidence:      1.0,
			CreatedAt:       c.Date,
		}
		if !dryRun {
			if err := e.DB.Save(&m); err != nil {
				return rep, fmt.Errorf("save achievement %s: %w", c.ShortHash(), err)
			}
		}
		rep.Saved = append(rep.Saved, m)
	}
	if !dryRun && len(rep.Saved) > 0 {
		log.Printf("achievements: saved %d for %s@%s", len(rep.Saved), agent.ID, project.ID)
	}
	return rep, nil
}

// Package assigner orchestrates rule evaluation per client and emits the
// current assignment set for a run.
package assigner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/mavasquez401/crm-territory-engine/pkg/models"
	"github.com/mavasquez401/crm-territory-engine/pkg/rules"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing"
)

// Config contains assignment settings for a run.
type Config struct {
	// WorkerCount bounds the parallel rule-evaluation workers.
	WorkerCount int
	// DefaultAdvisor is used when a client record carries no advisor email.
	DefaultAdvisor string
}

// DefaultConfig returns the standard assignment settings.
func DefaultConfig() Config {
	return Config{
		WorkerCount:    4,
		DefaultAdvisor: "UNASSIGNED",
	}
}

// Result is the output of one assignment pass.
type Result struct {
	Assignments []*models.Assignment
	Unassigned  []string
	Warnings    []string
	RuleStats   []models.RuleStats
}

// Assigner runs the rule chain over the resolved client set.
type Assigner struct {
	logger ectologger.Logger
	config Config
}

// NewAssigner creates an Assigner.
func NewAssigner(logger ectologger.Logger, config Config) *Assigner {
	if config.WorkerCount < 1 {
		config.WorkerCount = 1
	}
	if config.DefaultAdvisor == "" {
		config.DefaultAdvisor = DefaultConfig().DefaultAdvisor
	}
	return &Assigner{logger: logger, config: config}
}

// clientOutcome is one worker's verdict for a single client.
type clientOutcome struct {
	clientID   string
	assignment *models.Assignment
	warning    string
	vetoes     map[string]int // rule name -> vetoed candidate count
	err        error
}

// Assign evaluates the rule chain for every client and emits exactly one
// current PRIMARY assignment per assignable client. Rule evaluation is
// stateless per client, so clients are fanned out across workers; territory
// creation is serialized inside the catalog.
//
// The result is deterministic for a given client set and rule config:
// assignments are ordered by client_id and lazily created territory ids are
// derived, not random.
func (a *Assigner) Assign(
	ctx context.Context,
	clients []*models.Client,
	set *rules.RuleSet,
	rc *rules.RunContext,
	catalog *Catalog,
	runID string,
	effectiveDate time.Time,
) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "assigner.Assigner.Assign")
	defer span.End()

	log := a.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":       runID,
		"client_count": len(clients),
	})
	log.Debug("Starting assignment pass")

	jobs := make(chan *models.Client)
	outcomes := make(chan clientOutcome, len(clients))

	var wg sync.WaitGroup
	for w := 0; w < a.config.WorkerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for client := range jobs {
				outcomes <- a.evaluateClient(client, set, rc, catalog, runID, effectiveDate)
			}
		}()
	}

	for _, client := range clients {
		jobs <- client
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	result := &Result{}
	seen := make(map[string]bool)
	vetoTotals := make(map[string]int)
	scoreTotals := make(map[string]float64)
	assignTotals := make(map[string]int)

	for outcome := range outcomes {
		if outcome.err != nil {
			return nil, outcome.err
		}
		if outcome.warning != "" {
			result.Warnings = append(result.Warnings, outcome.warning)
		}
		for rule, n := range outcome.vetoes {
			vetoTotals[rule] += n
		}
		if outcome.assignment == nil {
			if outcome.clientID != "" {
				result.Unassigned = append(result.Unassigned, outcome.clientID)
			}
			continue
		}
		if seen[outcome.clientID] {
			// One current PRIMARY per client is a hard invariant; a duplicate
			// here means the input set was not deduplicated.
			return nil, fmt.Errorf("client %q produced more than one current PRIMARY assignment", outcome.clientID)
		}
		seen[outcome.clientID] = true
		result.Assignments = append(result.Assignments, outcome.assignment)
		assignTotals[outcome.assignment.AssignedByRule]++
		scoreTotals[outcome.assignment.AssignedByRule] += outcome.assignment.ConfidenceScore
	}

	sort.Slice(result.Assignments, func(i, j int) bool {
		return result.Assignments[i].ClientID < result.Assignments[j].ClientID
	})
	sort.Strings(result.Unassigned)
	sort.Strings(result.Warnings)
	result.RuleStats = buildRuleStats(set, assignTotals, vetoTotals, scoreTotals)

	log.WithFields(map[string]any{
		"assigned":   len(result.Assignments),
		"unassigned": len(result.Unassigned),
	}).Info("Assignment pass complete")

	return result, nil
}

// evaluateClient builds the ordered candidate list, filters blacklisted
// territories, and materializes the first surviving candidate.
func (a *Assigner) evaluateClient(
	client *models.Client,
	set *rules.RuleSet,
	rc *rules.RunContext,
	catalog *Catalog,
	runID string,
	effectiveDate time.Time,
) clientOutcome {
	outcome := clientOutcome{clientID: client.ClientID, vetoes: make(map[string]int)}

	if client.ClientID == "" {
		outcome.warning = fmt.Sprintf("skipped record with empty client_id (name=%q)", client.Name)
		return outcome
	}
	if !client.IsActive {
		outcome.warning = fmt.Sprintf("skipped inactive client %q", client.ClientID)
		outcome.clientID = "" // not counted as unassigned
		return outcome
	}

	var chosen *rules.Decision
	for _, rule := range set.Rules {
		decision := rule.Evaluate(client, rc)
		if decision == nil {
			continue
		}
		if set.Blacklist.Vetoes(client.ClientID, decision.TerritoryID) {
			outcome.vetoes[rule.Name()]++
			continue
		}
		chosen = decision
		break
	}

	if chosen == nil {
		return outcome
	}

	territory, err := catalog.Ensure(chosen.TerritoryID, chosen.Region, chosen.Segment)
	if err != nil {
		outcome.err = err
		return outcome
	}

	advisor := client.AdvisorEmail
	if advisor == "" {
		advisor = a.config.DefaultAdvisor
	}

	outcome.assignment = &models.Assignment{
		ID:              uuid.New().String(),
		ClientID:        client.ClientID,
		TerritoryID:     territory.TerritoryID,
		AssignmentType:  models.AssignmentTypePrimary,
		AdvisorEmail:    advisor,
		IsCurrent:       true,
		EffectiveDate:   effectiveDate,
		AssignedByRule:  chosen.Rule,
		ConfidenceScore: chosen.Confidence,
		RunID:           runID,
		CreatedAt:       time.Now().UTC(),
	}
	return outcome
}

func buildRuleStats(set *rules.RuleSet, assigns, vetoes map[string]int, scores map[string]float64) []models.RuleStats {
	stats := make([]models.RuleStats, 0, len(set.Rules))
	for _, rule := range set.Rules {
		name := rule.Name()
		s := models.RuleStats{
			Rule:        name,
			Assignments: assigns[name],
			Vetoes:      vetoes[name],
		}
		if s.Assignments > 0 {
			s.AvgScore = scores[name] / float64(s.Assignments)
		}
		stats = append(stats, s)
	}
	return stats
}

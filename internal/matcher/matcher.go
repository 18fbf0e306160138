// -----------------------------------------------------------------------
// Matcher - deterministic requirement-to-attestation coverage decisions
// -----------------------------------------------------------------------

package matcher

import (
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/normalize"
)

// shortKeywordSet is the requirement keyword-bag size at or below which the
// relaxed common-word floor applies.
const shortKeywordSet = 2

// Matcher applies tender requirements against a user's attestations. All
// decisions are deterministic: the same inputs always produce the same
// selection, with ties broken by attestation creation time.
type Matcher struct {
	logger arbor.ILogger
	config *common.MatcherConfig
}

func New(logger arbor.ILogger, config *common.MatcherConfig) *Matcher {
	return &Matcher{logger: logger, config: config}
}

// candidate is one attestation service under consideration for a
// requirement.
type candidate struct {
	attestationID string
	attCreatedAt  time.Time
	serviceIndex  int
	service       models.Service
	similarity    float64
	commonWords   int
}

// Match evaluates every requirement against the attestations and returns the
// full analysis with per-candidate traces.
func (m *Matcher) Match(requirements []models.Requirement, attestations []*models.Attestation) *models.AnalysisResult {
	result := &models.AnalysisResult{
		Requirements: make([]models.RequirementResult, 0, len(requirements)),
		GeneratedAt:  time.Now(),
	}
	for _, req := range requirements {
		result.Requirements = append(result.Requirements, m.matchOne(req, attestations))
	}
	return result
}

func (m *Matcher) matchOne(req models.Requirement, attestations []*models.Attestation) models.RequirementResult {
	res := models.RequirementResult{Requirement: req, Decision: models.DecisionUnmet}

	reqUnit := normalize.Unit(req.Unit)
	reqKeywords := normalize.Keywords(req.Description)
	minCommon := m.config.MinCommonWords
	if len(reqKeywords) <= shortKeywordSet {
		minCommon = m.config.MinCommonWordsShort
	}

	var candidates []candidate
	for _, att := range attestations {
		for i := range att.Services {
			svc := att.Services[i]
			trace := models.CandidateTrace{
				AttestationID: att.ID,
				ServiceIndex:  i,
				Description:   svc.Description,
				Unit:          svc.Unit,
				Quantity:      svc.Qty(),
			}

			if reject := m.gate(req, reqUnit, reqKeywords, &svc, &trace, minCommon); reject != "" {
				trace.Reject = reject
				res.Trace = append(res.Trace, trace)
				continue
			}

			res.Trace = append(res.Trace, trace)
			candidates = append(candidates, candidate{
				attestationID: att.ID,
				attCreatedAt:  att.CreatedAt,
				serviceIndex:  i,
				service:       svc,
				similarity:    trace.Similarity,
				commonWords:   trace.CommonWords,
			})
		}
	}

	m.selectGreedy(req, candidates, &res)
	return res
}

// gate applies the rejection filters in order: unit, activity, mandatory
// terms, then the similarity threshold. Returns the rejection reason or ""
// when the service survives. Similarity and common-word counts are recorded
// on the trace even for rejected candidates that got that far.
func (m *Matcher) gate(req models.Requirement, reqUnit string, reqKeywords map[string]bool, svc *models.Service, trace *models.CandidateTrace, minCommon int) models.RejectReason {
	if normalize.Unit(svc.Unit) != reqUnit {
		return models.RejectUnit
	}

	canonical := normalize.Description(svc.Description)

	if req.Activity != "" && !matchesActivity(req.Activity, canonical) {
		return models.RejectActivity
	}

	if len(req.MandatoryTerms) > 0 && !containsAnyTerm(canonical, req.MandatoryTerms) {
		return models.RejectMandatoryTerm
	}

	svcKeywords := normalize.Keywords(svc.Description)
	trace.Similarity = normalize.SimilarityOfSets(reqKeywords, svcKeywords)
	trace.CommonWords = normalize.CommonKeywords(reqKeywords, svcKeywords)

	if trace.Similarity < m.config.MinSimilarity || trace.CommonWords < minCommon {
		return models.RejectBelowThreshold
	}
	return ""
}

// selectGreedy accumulates contributions until the requirement is covered.
// The selection is a greedy knapsack approximation, not guaranteed optimal.
func (m *Matcher) selectGreedy(req models.Requirement, candidates []candidate, res *models.RequirementResult) {
	if len(candidates) == 0 {
		return
	}

	// Candidates are ordered by what they can actually contribute, capped at
	// the requirement: two services that both cover the full need tie here,
	// so similarity then creation time decide. Sorting on raw quantity would
	// let a huge low-similarity service outrank a better match that also
	// covers everything.
	contribution := func(c candidate) float64 {
		if q := c.service.Qty(); q < req.Required {
			return q
		}
		return req.Required
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ca, cb := contribution(a), contribution(b); ca != cb {
			return ca > cb
		}
		if a.similarity != b.similarity {
			return a.similarity > b.similarity
		}
		if !a.attCreatedAt.Equal(b.attCreatedAt) {
			return a.attCreatedAt.Before(b.attCreatedAt)
		}
		return a.attestationID < b.attestationID
	})

	if !req.AllowSum {
		candidates = candidates[:1]
	}

	var running float64
	for _, c := range candidates {
		if running >= req.Required {
			break
		}
		contribution := c.service.Qty()
		if remaining := req.Required - running; contribution > remaining {
			contribution = remaining
		}
		if contribution <= 0 {
			continue
		}
		running += contribution
		res.Contributions = append(res.Contributions, models.Contribution{
			AttestationID: c.attestationID,
			ServiceIndex:  c.serviceIndex,
			Quantity:      contribution,
			Similarity:    c.similarity,
		})
		markSelected(res.Trace, c.attestationID, c.serviceIndex)
	}

	res.Covered = running
	switch {
	case req.Required <= 0 || running >= req.Required:
		res.Decision = models.DecisionMeets
	case running > 0:
		res.Decision = models.DecisionPartial
	default:
		res.Decision = models.DecisionUnmet
	}

	if req.Required > 0 {
		res.CoveragePct = 100 * running / req.Required
		if res.CoveragePct > 100 {
			res.CoveragePct = 100
		}
	} else {
		res.CoveragePct = 100
	}
}

func markSelected(trace []models.CandidateTrace, attestationID string, serviceIndex int) {
	for i := range trace {
		if trace[i].AttestationID == attestationID && trace[i].ServiceIndex == serviceIndex {
			trace[i].Selected = true
			return
		}
	}
}

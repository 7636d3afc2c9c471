package observability

import "go.opentelemetry.io/otel/attribute"

// Semantic convention attributes for vigil spans and metrics.
var (
	AttrObligationID     = attribute.Key("vigil.obligation.id")
	AttrObligationDomain = attribute.Key("vigil.obligation.domain")
	AttrCheckStatus      = attribute.Key("vigil.check.status")

	AttrRunID     = attribute.Key("vigil.run.id")
	AttrRunStatus = attribute.Key("vigil.run.status")

	AttrPackID      = attribute.Key("vigil.pack.id")
	AttrPackVersion = attribute.Key("vigil.pack.version")

	AttrInsightID  = attribute.Key("vigil.insight.id")
	AttrGroupKey   = attribute.Key("vigil.consolidation.group")
	AttrRelation   = attribute.Key("vigil.consolidation.relation")
	AttrReviewerID = attribute.Key("vigil.reviewer.id")
)

// GateRunAttrs builds the span attributes for one gate run.
func GateRunAttrs(runID string, obligations int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRunID.String(runID),
		attribute.Int("vigil.run.obligations", obligations),
	}
}

// CheckAttrs builds the attributes for one resolved check.
func CheckAttrs(obligationID, domain, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrObligationID.String(obligationID),
		AttrObligationDomain.String(domain),
		AttrCheckStatus.String(status),
	}
}

// PromotionAttrs builds the attributes for a curation promotion.
func PromotionAttrs(insightID, reviewerID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrInsightID.String(insightID),
		AttrReviewerID.String(reviewerID),
	}
}

package models

type AnomalyType string

const (
	AnomalyTypeLedgerDivergence AnomalyType = "ledger_divergence"
	AnomalyTypeDaoVoteFailure   AnomalyType = "dao_vote_failure"
	AnomalyTypeCommitAnomaly    AnomalyType = "commit_anomaly"
	AnomalyTypeNodeDesync       AnomalyType = "node_desync"
	AnomalyTypeNetworkLatency   AnomalyType = "network_latency"
	AnomalyTypeDataCorruption   AnomalyType = "data_corruption"
)

var AllAnomalyTypes = []AnomalyType{
	AnomalyTypeLedgerDivergence,
	AnomalyTypeDaoVoteFailure,
	AnomalyTypeCommitAnomaly,
	AnomalyTypeNodeDesync,
	AnomalyTypeNetworkLatency,
	AnomalyTypeDataCorruption,
}

func (t AnomalyType) IsValid() bool {
	for _, v := range AllAnomalyTypes {
		if v == t {
			return true
		}
	}
	return false
}

type AnomalySeverity string

// ordered by urgency, lowest first
const (
	AnomalySeverityLow      AnomalySeverity = "low"
	AnomalySeverityMedium   AnomalySeverity = "medium"
	AnomalySeverityHigh     AnomalySeverity = "high"
	AnomalySeverityCritical AnomalySeverity = "critical"
)

var AllAnomalySeverities = []AnomalySeverity{
	AnomalySeverityLow,
	AnomalySeverityMedium,
	AnomalySeverityHigh,
	AnomalySeverityCritical,
}

// Rank is the position in the urgency order, -1 when invalid.
func (s AnomalySeverity) Rank() int {
	for i, v := range AllAnomalySeverities {
		if v == s {
			return i
		}
	}
	return -1
}

func (s AnomalySeverity) IsValid() bool {
	return s.Rank() >= 0
}

type AnomalyStatus string

const (
	AnomalyStatusDetected      AnomalyStatus = "detected"
	AnomalyStatusInvestigating AnomalyStatus = "investigating"
	AnomalyStatusResolved      AnomalyStatus = "resolved"
	AnomalyStatusIgnored       AnomalyStatus = "ignored"
)

var AllAnomalyStatuses = []AnomalyStatus{
	AnomalyStatusDetected,
	AnomalyStatusInvestigating,
	AnomalyStatusResolved,
	AnomalyStatusIgnored,
}

func (s AnomalyStatus) IsValid() bool {
	for _, v := range AllAnomalyStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsPending is true for statuses that still need operator attention.
// Ignored counts as neither pending nor resolved.
func (s AnomalyStatus) IsPending() bool {
	return s != AnomalyStatusResolved && s != AnomalyStatusIgnored
}

package shared

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)

// EventKind names a committed ledger or settlement change.
type EventKind string

const (
	EventContributionRecorded       EventKind = "CONTRIBUTION_RECORDED"
	EventCampaignClosed             EventKind = "CAMPAIGN_CLOSED"
	EventSettlementStarted          EventKind = "SETTLEMENT_STARTED"
	EventSettlementAttemptSucceeded EventKind = "SETTLEMENT_ATTEMPT_SUCCEEDED"
	EventSettlementAttemptFailed    EventKind = "SETTLEMENT_ATTEMPT_FAILED"
	EventSettlementStalled          EventKind = "SETTLEMENT_STALLED"
	EventSettlementCompleted        EventKind = "SETTLEMENT_COMPLETED"
)

// CommandAction is what a settlement command asks the processor to do.
type CommandAction string

const (
	CommandActionBegin  CommandAction = "BEGIN"
	CommandActionResume CommandAction = "RESUME"
)

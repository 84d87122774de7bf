package health

import "context"

// DBPinger checks vector store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// LLMChecker checks text-generation service availability.
type LLMChecker interface {
	HealthCheck(ctx context.Context) error
}

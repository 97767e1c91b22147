package casefile

import (
	"context"
	"fmt"

	"github.com/pactum/agreement-engine/finance"
)

// DerivedPartyDirectory resolves parties from the case id alone. Used when
// the engine runs detached from the entity registry (dev, tests); the real
// registry implements PartyDirectory in the surrounding system.
type DerivedPartyDirectory struct{}

func (DerivedPartyDirectory) GetCaseParties(_ context.Context, caseID finance.CaseID) (finance.EntityID, finance.EntityID, error) {
	client := finance.EntityID(fmt.Sprintf("client-%s", caseID))
	executed := finance.EntityID(fmt.Sprintf("executed-%s", caseID))
	return client, executed, nil
}

// NoopArchiver is a no-op DocumentArchiver for when archival is disabled.
type NoopArchiver struct{}

func (NoopArchiver) ArchiveCaseDocuments(context.Context, finance.CaseID) error { return nil }

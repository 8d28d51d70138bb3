package service

import (
	"context"

	"louyass/core"
	"louyass/storage"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// IssueCreate is the body of a problem report
type IssueCreate struct {
	ContratID   int64  `json:"contrat_id" validate:"required,gt=0"`
	Description string `json:"description" validate:"required,max=5000"`
	Type        string `json:"type" validate:"required,oneof=plomberie electricite serrurerie nuisible autre"`
}

// IssueUpdate holds the optional changes to a report. The reporter edits the
// description and type; the owner of the room moves the status.
type IssueUpdate struct {
	Description *string           `json:"description,omitempty" validate:"omitempty,max=5000"`
	Type        *string           `json:"type,omitempty" validate:"omitempty,oneof=plomberie electricite serrurerie nuisible autre"`
	Statut      *core.IssueStatus `json:"statut,omitempty" validate:"omitempty,oneof=ouvert en_cours resolu"`
}

// IssueService handles problem reports on contracts
type IssueService struct {
	issues    IssueStore
	contracts ContractReader
	clock     clockwork.Clock
	logger    *zap.SugaredLogger
}

// NewIssueService creates the issue service
func NewIssueService(issues IssueStore, contracts ContractReader, clock clockwork.Clock, logger *zap.SugaredLogger) *IssueService {
	if issues == nil || contracts == nil {
		panic("issue service storages are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &IssueService{issues: issues, contracts: contracts, clock: clock, logger: logger}
}

// Create files a report on a contract the caller is party to
func (s *IssueService) Create(ctx context.Context, caller *core.User, in IssueCreate) (*core.Issue, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	c, err := s.contracts.GetContractDetails(ctx, in.ContratID)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrContractNotFound, "Contrat non trouvé", "load contract")
	}
	if c.LocataireID != caller.ID && contractOwnerID(c) != caller.ID {
		return nil, forbidden("Vous n'êtes pas partie à ce contrat")
	}

	i := &core.Issue{
		ContratID:   c.ID,
		SignalePar:  caller.ID,
		Description: in.Description,
		Type:        in.Type,
		Statut:      core.IssueOpen,
		CreeLe:      s.clock.Now().UTC(),
	}
	if err := s.issues.CreateIssue(ctx, i); err != nil {
		return nil, internal("create issue", err)
	}
	s.logger.Infow("Issue reported", "issue_id", i.ID, "contract_id", c.ID, "by", caller.ID)
	return i, nil
}

// List returns the reports visible to the caller: on their leases as tenant
// or on their rooms as owner
func (s *IssueService) List(ctx context.Context, caller *core.User, skip, limit int) ([]core.Issue, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := validatePage(skip, limit); err != nil {
		return nil, err
	}
	items, err := s.issues.ListIssues(ctx, storage.IssueFilter{UserID: caller.ID, Limit: limit, Offset: skip})
	if err != nil {
		return nil, internal("list issues", err)
	}
	return items, nil
}

// Get returns a report to a party of its contract
func (s *IssueService) Get(ctx context.Context, caller *core.User, id int64) (*core.Issue, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	i, c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.LocataireID != caller.ID && contractOwnerID(c) != caller.ID {
		return nil, ErrForbidden
	}
	return i, nil
}

// Update edits a report
func (s *IssueService) Update(ctx context.Context, caller *core.User, id int64, in IssueUpdate) (*core.Issue, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	i, c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.LocataireID != caller.ID && contractOwnerID(c) != caller.ID {
		return nil, ErrForbidden
	}
	if in.Statut != nil && *in.Statut != i.Statut {
		if contractOwnerID(c) != caller.ID {
			return nil, forbidden("Seul le propriétaire peut changer le statut du problème")
		}
		if !in.Statut.IsValid() {
			return nil, badRequest("Statut invalide")
		}
		i.Statut = *in.Statut
	}
	if in.Description != nil || in.Type != nil {
		if i.SignalePar != caller.ID {
			return nil, forbidden("Seul l'auteur du signalement peut le modifier")
		}
		if in.Description != nil {
			i.Description = *in.Description
		}
		if in.Type != nil {
			i.Type = *in.Type
		}
	}
	if err := s.issues.UpdateIssue(ctx, i); err != nil {
		return nil, notFoundOr(err, storage.ErrIssueNotFound, "Problème non trouvé", "update issue")
	}
	return i, nil
}

// Delete removes a report. Only its author may.
func (s *IssueService) Delete(ctx context.Context, caller *core.User, id int64) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	i, _, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if i.SignalePar != caller.ID {
		return forbidden("Seul l'auteur du signalement peut le supprimer")
	}
	if err := s.issues.DeleteIssue(ctx, id); err != nil {
		return notFoundOr(err, storage.ErrIssueNotFound, "Problème non trouvé", "delete issue")
	}
	return nil
}

func (s *IssueService) load(ctx context.Context, id int64) (*core.Issue, *core.Contract, error) {
	i, err := s.issues.GetIssue(ctx, id)
	if err != nil {
		return nil, nil, notFoundOr(err, storage.ErrIssueNotFound, "Problème non trouvé", "load issue")
	}
	c, err := s.contracts.GetContractDetails(ctx, i.ContratID)
	if err != nil {
		return nil, nil, notFoundOr(err, storage.ErrContractNotFound, "Problème non trouvé", "load issue contract")
	}
	return i, c, nil
}

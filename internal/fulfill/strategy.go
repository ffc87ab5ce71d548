package fulfill

import (
	"context"
	"errors"

	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/models"
	"github.com/harrylevesque/scanfulfill/internal/utils"
)

// Service is the network boundary; *service.Client implements it.
type Service interface {
	Lookup(ctx context.Context, s config.Settings, code string) ([]models.OrderRef, error)
	Deliver(ctx context.Context, s config.Settings, order models.OrderRef) error
	Submit(ctx context.Context, s config.Settings, code string) error
}

// Confirmer asks the operator about an order and waits for the answer.
type Confirmer interface {
	Confirm(ctx context.Context, order models.OrderRef) models.Verdict
}

// Strategy is one protocol shape. Execute returns nil once the service
// has accepted the transaction, ErrCancelled when the operator backed
// out, or the failure.
type Strategy interface {
	Mode() config.Mode

	// Required lists the settings keys that must be non-empty before
	// any request is made.
	Required() []string

	FirstStage() models.Stage
	Execute(ctx context.Context, tx *Transaction) error
}

// NewStrategy picks the strategy for a deployment mode.
func NewStrategy(mode config.Mode, svc Service, confirmer Confirmer) (Strategy, error) {
	switch mode {
	case config.SingleStep:
		return NewSingleStep(svc), nil
	case config.TwoStep:
		if confirmer == nil {
			return nil, errors.New("two-step mode needs a confirmer")
		}
		return NewTwoStep(svc, confirmer), nil
	}
	return nil, errors.New("unknown mode " + string(mode))
}

// SingleStep submits the scanned code in one call.
type SingleStep struct {
	svc Service
}

func NewSingleStep(svc Service) *SingleStep { return &SingleStep{svc: svc} }

func (*SingleStep) Mode() config.Mode { return config.SingleStep }

func (*SingleStep) Required() []string {
	return []string{config.KeyEndpointURL, config.KeyCategory, config.KeyVolunteerCode}
}

func (*SingleStep) FirstStage() models.Stage { return models.StageSubmitting }

func (s *SingleStep) Execute(ctx context.Context, tx *Transaction) error {
	return s.svc.Submit(ctx, tx.Settings(), tx.Code())
}

// TwoStep looks the code up, asks the operator to confirm the first
// order found and then reports its delivery.
type TwoStep struct {
	svc       Service
	confirmer Confirmer
}

func NewTwoStep(svc Service, confirmer Confirmer) *TwoStep {
	return &TwoStep{svc: svc, confirmer: confirmer}
}

func (*TwoStep) Mode() config.Mode { return config.TwoStep }

func (*TwoStep) Required() []string {
	return []string{config.KeyEndpointURL, config.KeyVolunteerCode}
}

func (*TwoStep) FirstStage() models.Stage { return models.StageLookup }

func (s *TwoStep) Execute(ctx context.Context, tx *Transaction) error {
	orders, err := s.svc.Lookup(ctx, tx.Settings(), tx.Code())
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return utils.Wrap(utils.KindMalformedResponse, errors.New("lookup returned no orders"))
	}
	order := orders[0]
	tx.SetOrder(order)
	if tx.Abandoned() {
		return ErrCancelled
	}

	tx.SetStage(models.StageConfirming)
	if !s.confirm(ctx, tx, order) {
		return ErrCancelled
	}

	tx.SetStage(models.StageDelivering)
	return s.svc.Deliver(ctx, tx.Settings(), order)
}

// confirm asks the operator about order. Abandoning tx withdraws the
// prompt, which counts as cancel.
func (s *TwoStep) confirm(ctx context.Context, tx *Transaction, order models.OrderRef) bool {
	cctx, cancel := tx.bind(ctx)
	defer cancel()
	return s.confirmer.Confirm(cctx, order) == models.VerdictConfirm && !tx.Abandoned()
}

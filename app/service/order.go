package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-orders/app/entity"
	"github.com/vibast-solutions/ms-go-orders/app/factory"
	"github.com/vibast-solutions/ms-go-orders/app/provider"
	"github.com/vibast-solutions/ms-go-orders/app/repository"
	"github.com/vibast-solutions/ms-go-orders/config"
)

const defaultListLimit = int32(100)

type OrderService struct {
	tx          repository.TxRunner
	orders      repository.OrderStore
	disputes    repository.DisputeStore
	outbox      repository.OutboxStore
	audit       repository.AuditLogStore
	timeline    repository.TimelineStore
	providerReg *provider.Registry

	ordersCfg     config.OrdersConfig
	complianceCfg config.ComplianceConfig
	outboxCfg     config.OutboxConfig
	notifyCfg     config.NotificationsConfig
	appAPIKey     string

	rules      ComplianceRules
	notifyHTTP *http.Client
	log        logrus.FieldLogger
}

func NewOrderService(
	tx repository.TxRunner,
	orders repository.OrderStore,
	disputes repository.DisputeStore,
	outbox repository.OutboxStore,
	audit repository.AuditLogStore,
	timeline repository.TimelineStore,
	providerReg *provider.Registry,
	cfg *config.Config,
) *OrderService {
	timeout := cfg.Notifications.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &OrderService{
		tx:            tx,
		orders:        orders,
		disputes:      disputes,
		outbox:        outbox,
		audit:         audit,
		timeline:      timeline,
		providerReg:   providerReg,
		ordersCfg:     cfg.Orders,
		complianceCfg: cfg.Compliance,
		outboxCfg:     cfg.Outbox,
		notifyCfg:     cfg.Notifications,
		appAPIKey:     strings.TrimSpace(cfg.App.APIKey),
		rules: ComplianceRules{
			RestrictedCategories: cfg.Compliance.RestrictedCategories,
			PermitCategories:     cfg.Compliance.PermitCategories,
			AllowedRegion:        cfg.Compliance.AllowedRegion,
		},
		notifyHTTP: &http.Client{Timeout: timeout},
		log:        factory.NewModuleLogger("orders-service"),
	}
}

// HandleProviderEvent runs one inbound webhook event through the idempotency
// ledger and, when the event is new, applies the matching transition. The
// ledger insert and the transition share one transaction, so a failed
// transition rolls the ledger row back and the provider's redelivery gets a
// clean attempt. Redelivered events that already committed short-circuit with
// success.
func (s *OrderService) HandleProviderEvent(ctx context.Context, providerName string, payload []byte, signature string) error {
	client, err := s.providerReg.Get(providerName)
	if err != nil {
		return ErrProviderUnsupported
	}

	event, err := client.VerifyAndParseEvent(ctx, payload, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEventRejected, err)
	}

	now := time.Now().UTC()
	return s.tx.WithinTx(ctx, func(tx repository.TxRepos) error {
		isNew, err := tx.WebhookEvents().RecordIfNew(ctx, ledgerRecord(event, now))
		if err != nil {
			// The ledger write failed. Re-check before giving up: proceeding
			// on a non-authoritative answer would fork real money movement.
			exists, checkErr := tx.WebhookEvents().Exists(ctx, event.ID)
			if checkErr != nil || !exists {
				return err
			}
			return nil
		}
		if !isNew {
			return nil
		}
		return s.dispatchEvent(ctx, tx, client, event, now)
	})
}

func (s *OrderService) dispatchEvent(ctx context.Context, tx repository.TxRepos, client provider.PaymentProvider, event *provider.Event, now time.Time) error {
	switch event.Kind {
	case provider.EventCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, tx, client, event.Session, now)
	case provider.EventAsyncPaymentSucceeded:
		return s.applyAsyncPaymentSucceeded(ctx, tx, client, event.Session, now)
	case provider.EventAsyncPaymentFailed:
		return s.applyCheckoutAbandoned(ctx, tx, event.Session, "async_payment_failed", now)
	case provider.EventCheckoutExpired:
		return s.applyCheckoutAbandoned(ctx, tx, event.Session, "checkout_expired", now)
	case provider.EventPaymentIntentSucceeded:
		return s.applyWireIntentSucceeded(ctx, tx, client, event.Intent, now)
	case provider.EventPaymentIntentCanceled:
		return s.applyWireIntentCanceled(ctx, tx, event.Intent, now)
	case provider.EventDisputeCreated:
		return s.applyDisputeCreated(ctx, tx, event.Dispute, now)
	case provider.EventDisputeUpdated:
		return s.applyDisputeUpdated(ctx, tx, event.Dispute, now)
	case provider.EventDisputeClosed:
		return s.applyDisputeClosed(ctx, tx, event.Dispute, now)
	case provider.EventDisputeFundsWithdrawn:
		return s.applyDisputeFunds(ctx, tx, event.Dispute, true, now)
	case provider.EventDisputeFundsReinstated:
		return s.applyDisputeFunds(ctx, tx, event.Dispute, false, now)
	case provider.EventAccountUpdated:
		// Seller payout capability lives outside this service.
		return nil
	case provider.EventUnknown:
		s.log.WithField("event_id", event.ID).Debug("Ignoring unhandled provider event type")
		return nil
	default:
		s.log.WithField("event_kind", string(event.Kind)).Warn("Provider event kind without a handler")
		return nil
	}
}

func ledgerRecord(event *provider.Event, now time.Time) *entity.WebhookEvent {
	record := &entity.WebhookEvent{
		EventID:   event.ID,
		EventType: string(event.Kind),
		CreatedAt: now,
	}
	if event.Session != nil {
		sessionID := event.Session.ID
		record.CheckoutSessionID = &sessionID
		if intentID := strings.TrimSpace(event.Session.PaymentIntentID); intentID != "" {
			record.PaymentIntentID = &intentID
		}
	}
	if event.Intent != nil {
		intentID := event.Intent.ID
		record.PaymentIntentID = &intentID
	}
	if event.Dispute != nil {
		disputeID := event.Dispute.ID
		record.DisputeID = &disputeID
		if intentID := strings.TrimSpace(event.Dispute.PaymentIntentID); intentID != "" {
			record.PaymentIntentID = &intentID
		}
	}
	return record
}

package inbound

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-rfp/core"
	"github.com/goliatone/go-rfp/wire"
)

type Disposition string

const (
	DispositionAck     Disposition = "ack"
	DispositionReject  Disposition = "reject"
	DispositionRequeue Disposition = "requeue"
)

type Outcome struct {
	Disposition Disposition
	Action      core.Action
	Err         error
}

// DispositionFor maps a handler error onto the bus settlement.
func DispositionFor(err error) Disposition {
	switch core.ClassifyError(err) {
	case core.ErrorKindNone:
		return DispositionAck
	case core.ErrorKindPermanent:
		return DispositionReject
	default:
		return DispositionRequeue
	}
}

type PipelineConfig struct {
	CompanyID string
	Format    wire.Format
	Namespace string
	Store     core.Store
	Directory core.Directory
	// Notifier receives internal notifications keyed by their routing key.
	Notifier core.Publisher
	Locker   core.NegotiationLocker
	LockTTL  time.Duration
	Observer *core.Observer
}

func PipelineConfigFrom(cfg core.Config) PipelineConfig {
	return PipelineConfig{
		CompanyID: cfg.CompanyStaticID,
		Format:    wire.FormatFromConfig(cfg),
		Namespace: cfg.Notification.Namespace,
		LockTTL:   cfg.Lock.TTL,
	}
}

type Pipeline struct {
	companyID string
	format    wire.Format
	namespace string
	store     core.Store
	directory core.Directory
	notifier  core.Publisher
	locker    core.NegotiationLocker
	lockTTL   time.Duration
	observer  *core.Observer

	mu    sync.RWMutex
	roles map[core.ActionType]Role
}

func NewPipeline(cfg PipelineConfig, roles ...Role) (*Pipeline, error) {
	cfg.CompanyID = strings.TrimSpace(cfg.CompanyID)
	if cfg.CompanyID == "" {
		return nil, core.BadInputError("inbound: company id is required", nil)
	}
	if cfg.Store == nil {
		return nil, core.BadInputError("inbound: store is required", nil)
	}
	if cfg.Notifier == nil {
		return nil, core.BadInputError("inbound: notifier is required", nil)
	}
	if cfg.Locker == nil {
		cfg.Locker = core.NewMemoryNegotiationLocker()
	}
	pipeline := &Pipeline{
		companyID: cfg.CompanyID,
		format:    cfg.Format,
		namespace: cfg.Namespace,
		store:     cfg.Store,
		directory: cfg.Directory,
		notifier:  cfg.Notifier,
		locker:    cfg.Locker,
		lockTTL:   cfg.LockTTL,
		observer:  cfg.Observer,
		roles:     map[core.ActionType]Role{},
	}
	for _, role := range roles {
		if err := pipeline.Register(role); err != nil {
			return nil, err
		}
	}
	return pipeline, nil
}

func (p *Pipeline) Register(role Role) error {
	if p == nil {
		return inboundInternal("inbound: pipeline is nil", nil)
	}
	if role == nil {
		return core.BadInputError("inbound: role is nil", nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, actionType := range role.MessageTypes() {
		if existing, ok := p.roles[actionType]; ok {
			return inboundConflict(
				fmt.Sprintf("inbound: %s already handled by %s", actionType, existing.Name()),
				map[string]any{"action_type": string(actionType), "role": role.Name()},
			)
		}
	}
	for _, actionType := range role.MessageTypes() {
		p.roles[actionType] = role
	}
	return nil
}

func (p *Pipeline) role(actionType core.ActionType) (Role, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	role, ok := p.roles[actionType]
	return role, ok
}

// Handle runs one bus body through the pipeline and reports how to settle it.
func (p *Pipeline) Handle(ctx context.Context, body []byte) Outcome {
	if p == nil {
		err := inboundInternal("inbound: pipeline is nil", nil)
		return Outcome{Disposition: DispositionFor(err), Err: err}
	}
	startedAt := time.Now()
	fields := map[string]any{}
	action, err := p.handle(ctx, body, fields)
	outcome := Outcome{Disposition: DispositionFor(err), Action: action, Err: err}
	fields["disposition"] = string(outcome.Disposition)
	p.observer.ObserveOperation(ctx, startedAt, "inbound_message", err, fields)
	return outcome
}

func (p *Pipeline) handle(ctx context.Context, body []byte, fields map[string]any) (core.Action, error) {
	if p == nil || p.store == nil || p.notifier == nil {
		return core.Action{}, inboundInternal("inbound: pipeline is not configured", nil)
	}
	msg, err := wire.Decode(p.format, body)
	if err != nil {
		return core.Action{}, err
	}
	fields["action_type"] = string(msg.Type)
	fields["action_id"] = msg.Header.ActionID
	fields["rfp_id"] = msg.Header.RFPID
	fields["sender_static_id"] = msg.Header.SenderStaticID

	role, ok := p.role(msg.Type)
	if !ok {
		return core.Action{}, core.AddressingError(fmt.Sprintf("inbound: no role handles %s", msg.Type), map[string]any{
			"action_type": string(msg.Type),
		})
	}
	fields["role"] = role.Name()
	if err := p.checkAddressing(ctx, msg); err != nil {
		return core.Action{}, err
	}

	// Built before any write: an unroutable message must leave no records.
	notification, err := p.buildNotification(ctx, role, msg)
	if err != nil {
		return core.Action{}, err
	}

	var action core.Action
	err = core.WithNegotiationLock(ctx, p.locker, msg.Header.RFPID, p.lockTTL, func(ctx context.Context) error {
		persisted, err := role.ValidateAndPersist(ctx, msg)
		if err != nil {
			return err
		}
		if err := p.notify(ctx, notification); err != nil {
			return err
		}
		action, err = p.store.UpdateActionStatus(ctx, persisted.StaticID, core.ActionStatusProcessed, nil)
		if err != nil {
			return persistError(err, "inbound: mark action processed", map[string]any{"action_id": persisted.StaticID})
		}
		return nil
	})
	return action, err
}

func (p *Pipeline) checkAddressing(ctx context.Context, msg wire.Message) error {
	meta := map[string]any{
		"action_id":           msg.Header.ActionID,
		"recipient_static_id": msg.Header.RecipientStaticID,
		"sender_static_id":    msg.Header.SenderStaticID,
	}
	if msg.Header.RecipientStaticID != p.companyID {
		return core.AddressingError("inbound: message is not addressed to this company", meta)
	}
	if msg.Header.SenderStaticID == p.companyID {
		return core.AddressingError("inbound: message was sent by this company", meta)
	}
	if p.directory == nil {
		return nil
	}
	if _, err := p.directory.Lookup(ctx, msg.Header.SenderStaticID); err != nil {
		if core.IsPermanent(err) {
			return err
		}
		return core.DirectoryUnavailableError(err, "inbound: sender lookup failed", meta)
	}
	return nil
}

func (p *Pipeline) buildNotification(ctx context.Context, role Role, msg wire.Message) (core.BusMessage, error) {
	key, err := wire.RoutingKey(p.namespace, msg.Context, msg.Type)
	if err != nil {
		return core.BusMessage{}, err
	}
	notification, err := role.BuildNotification(ctx, msg)
	if err != nil {
		return core.BusMessage{}, err
	}
	body, err := wire.EncodeNotification(notification)
	if err != nil {
		return core.BusMessage{}, err
	}
	return core.BusMessage{
		Key:         key,
		MessageType: msg.MessageType,
		MessageID:   msg.Header.ActionID,
		Body:        body,
	}, nil
}

func (p *Pipeline) notify(ctx context.Context, message core.BusMessage) error {
	if err := p.notifier.Publish(ctx, message); err != nil {
		if core.TextCode(err) == core.ErrorInternal {
			return core.DeliveryError(err, "inbound: publish internal notification", map[string]any{"routing_key": message.Key})
		}
		return err
	}
	return nil
}

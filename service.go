package rfp

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-rfp/adapters/gologger"
	"github.com/goliatone/go-rfp/core"
	"github.com/goliatone/go-rfp/inbound"
	"github.com/goliatone/go-rfp/outbound"
	"github.com/goliatone/go-rfp/wire"
)

type Config = core.Config

type (
	CreateRequestInput  = core.CreateRequestInput
	CreateRequestResult = core.CreateRequestResult
	CreateReplyInput    = core.CreateReplyInput
	CreateAcceptInput   = core.CreateAcceptInput
	AcceptResult        = core.AcceptResult
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Service is one company's negotiation engine: the outbound control surface plus
// the inbound pipeline fed by a bus consumer.
type Service struct {
	config            Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metricsRecorder   core.MetricsRecorder
	persistenceClient any
	repositoryFactory any
	store             core.Store
	publisher         core.Publisher
	notifier          core.Publisher
	directory         core.Directory
	locker            core.NegotiationLocker

	observer *core.Observer
	consumer *core.Observer
	creator  *outbound.Creator
	sender   *outbound.Sender
	decliner *outbound.AutoDecliner
	pipeline *inbound.Pipeline
}

type ServiceDependencies struct {
	Logger            core.Logger
	LoggerProvider    core.LoggerProvider
	MetricsRecorder   core.MetricsRecorder
	PersistenceClient any
	RepositoryFactory any
	Store             core.Store
	Publisher         core.Publisher
	Notifier          core.Publisher
	Directory         core.Directory
	Locker            core.NegotiationLocker
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := gologger.Resolve(gologger.RootLoggerName, builder.loggerProvider, builder.logger)
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = core.NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = core.GoOptionsResolver{}
	}
	if builder.locker == nil {
		builder.locker = core.NewMemoryNegotiationLocker()
	}

	finalConfig, err := core.ResolveConfig(context.Background(), builder.configProvider, builder.optionsResolver, builder.runtimeConfig)
	if err != nil {
		return nil, core.ConfigError(err, "rfp: resolve config")
	}
	if err := finalConfig.RequireCompany(); err != nil {
		return nil, err
	}

	if err := resolveStores(&builder); err != nil {
		return nil, err
	}
	if builder.store == nil {
		builder.store = core.NewMemoryStore()
	}
	if builder.publisher == nil {
		return nil, core.BadInputError("rfp: publisher is required", nil)
	}
	if builder.notifier == nil {
		builder.notifier = builder.publisher
	}

	companyID := strings.TrimSpace(finalConfig.CompanyStaticID)
	format := wire.FormatFromConfig(finalConfig)
	observer := core.NewObserver(gologger.Component(provider, logger, "service"), builder.metricsRecorder)
	outboundObserver := core.NewObserver(gologger.Component(provider, logger, "outbound"), builder.metricsRecorder)
	inboundObserver := core.NewObserver(gologger.Component(provider, logger, "inbound"), builder.metricsRecorder)

	creatorOpts := []outbound.CreatorOption{
		outbound.WithCreatorLocker(builder.locker, finalConfig.Lock.TTL),
		outbound.WithCreatorObserver(outboundObserver),
		outbound.WithCreatorIDGenerator(builder.newID),
		outbound.WithCreatorClock(builder.now),
	}
	creator := outbound.NewCreator(builder.store, companyID, creatorOpts...)
	publisher := outbound.NewRetryingPublisher(builder.publisher, finalConfig.Publisher)
	publisher.Observer = outboundObserver
	sender := outbound.NewSender(builder.store, publisher, companyID,
		outbound.WithSenderFormat(format),
		outbound.WithSenderObserver(outboundObserver),
		outbound.WithSenderClock(builder.now),
	)

	pipelineCfg := inbound.PipelineConfigFrom(finalConfig)
	pipelineCfg.Store = builder.store
	pipelineCfg.Directory = builder.directory
	pipelineCfg.Notifier = builder.notifier
	pipelineCfg.Locker = builder.locker
	pipelineCfg.Observer = inboundObserver
	pipeline, err := inbound.NewPipeline(pipelineCfg, inbound.DefaultRoles(builder.store, companyID)...)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		store:             builder.store,
		publisher:         builder.publisher,
		notifier:          builder.notifier,
		directory:         builder.directory,
		locker:            builder.locker,
		observer:          observer,
		consumer:          inboundObserver,
		creator:           creator,
		sender:            sender,
		decliner:          outbound.NewAutoDecliner(builder.store, creator, sender, outboundObserver),
		pipeline:          pipeline,
	}, nil
}

// resolveStores fills the store and directory from the repository factory when
// they were not given directly.
func resolveStores(builder *serviceBuilder) error {
	if builder.repositoryFactory == nil {
		return nil
	}
	factory := builder.repositoryFactory
	if storeFactory, ok := factory.(core.RepositoryStoreFactory); ok && builder.store == nil {
		provider, err := storeFactory.BuildStores(builder.persistenceClient)
		if err != nil {
			return err
		}
		if provider != nil {
			factory = provider
		}
	}
	if builder.store == nil {
		if combined, ok := factory.(interface{ Store() core.Store }); ok {
			builder.store = combined.Store()
		} else if provider, ok := factory.(core.StoreProvider); ok {
			actions, rfps := provider.ActionStore(), provider.RFPStore()
			if actions != nil && rfps != nil {
				builder.store = storePair{ActionStore: actions, RFPStore: rfps}
			}
		}
	}
	if builder.directory == nil {
		if provider, ok := factory.(interface{ Directory() core.Directory }); ok {
			builder.directory = provider.Directory()
		}
	}
	return nil
}

type storePair struct {
	core.ActionStore
	core.RFPStore
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		Store:             s.store,
		Publisher:         s.publisher,
		Notifier:          s.notifier,
		Directory:         s.directory,
		Locker:            s.locker,
	}
}

// CreateRequest stores the RFP, creates one Request per participant and sends
// them. It fails only when nothing could be delivered.
func (s *Service) CreateRequest(ctx context.Context, in CreateRequestInput) (result CreateRequestResult, err error) {
	startedAt := time.Now()
	fields := map[string]any{"participants": len(in.ParticipantIDs)}
	defer func() {
		fields["rfp_id"] = result.RFP.StaticID
		fields["sent"] = countSucceeded(result.Results)
		s.observer.ObserveOperation(ctx, startedAt, "create_request", err, fields)
	}()
	if err := s.ready(); err != nil {
		return CreateRequestResult{}, err
	}
	if err := in.Validate(); err != nil {
		return CreateRequestResult{}, err
	}
	rfp, _, err := s.creator.CreateRequests(ctx, outbound.CreateRequestsInput{
		RFP:            in.RFP(),
		ParticipantIDs: in.ParticipantIDs,
	})
	if err != nil {
		return CreateRequestResult{}, err
	}
	results, err := s.sender.SendAll(ctx, rfp.StaticID, core.ActionTypeRequest)
	return CreateRequestResult{RFP: rfp, Results: results}, err
}

// CreateReply sends a Response or Reject to the company that requested the RFP.
func (s *Service) CreateReply(ctx context.Context, in CreateReplyInput) (result core.SendResult, err error) {
	startedAt := time.Now()
	fields := map[string]any{"rfp_id": in.RFPID, "action_type": string(in.Type)}
	defer func() {
		fields["status"] = string(result.Status)
		s.observer.ObserveOperation(ctx, startedAt, "create_reply", err, fields)
	}()
	if err := s.ready(); err != nil {
		return core.SendResult{}, err
	}
	if err := in.Validate(); err != nil {
		return core.SendResult{}, err
	}
	action, err := s.creator.CreateReply(ctx, in.RFPID, in.Type, in.Data)
	if err != nil {
		return core.SendResult{}, err
	}
	fields["recipient_static_id"] = action.RecipientStaticID
	return s.sender.SendLatest(ctx, in.RFPID, in.Type, action.RecipientStaticID)
}

// CreateAccept sends an Accept to the chosen participant, then declines every
// other participant still open. Decline failures never fail the accept.
func (s *Service) CreateAccept(ctx context.Context, in CreateAcceptInput) (result AcceptResult, err error) {
	startedAt := time.Now()
	fields := map[string]any{"rfp_id": in.RFPID, "participant_id": in.ParticipantID}
	defer func() {
		fields["status"] = string(result.Accept.Status)
		fields["declines"] = len(result.Declines)
		s.observer.ObserveOperation(ctx, startedAt, "create_accept", err, fields)
	}()
	if err := s.ready(); err != nil {
		return AcceptResult{}, err
	}
	if err := in.Validate(); err != nil {
		return AcceptResult{}, err
	}

	// Create and send run under a second per-RFP key so two accepts cannot both publish.
	err = core.WithNegotiationLock(ctx, s.locker, acceptLockKey(in.RFPID), s.config.Lock.TTL, func(ctx context.Context) error {
		if _, err := s.creator.CreateAccept(ctx, in.RFPID, in.ParticipantID, in.Data); err != nil {
			return err
		}
		sent, err := s.sender.SendLatest(ctx, in.RFPID, core.ActionTypeAccept, in.ParticipantID)
		result.Accept = sent
		return err
	})
	if err != nil {
		return result, err
	}

	declines, declineErr := s.decliner.DeclineRemaining(ctx, in.RFPID)
	result.Declines = declines
	if declineErr != nil {
		s.observer.Warn(ctx, "auto decline incomplete", map[string]any{
			"rfp_id": in.RFPID,
			"error":  declineErr.Error(),
		})
	}
	return result, nil
}

// ListActions returns the RFP's actions oldest first; no types means all types.
func (s *Service) ListActions(ctx context.Context, rfpID string, types ...core.ActionType) ([]core.Action, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rfpID = strings.TrimSpace(rfpID)
	if rfpID == "" {
		return nil, core.BadInputError("rfp: rfp id is required", nil)
	}
	actions, err := s.store.FindActions(ctx, core.ActionQuery{RFPID: rfpID, Types: types}.Normalize())
	if err != nil {
		return nil, readError(err, "rfp: list actions", map[string]any{"rfp_id": rfpID})
	}
	return actions, nil
}

func (s *Service) GetRequestForProposal(ctx context.Context, rfpID string) (core.RequestForProposal, error) {
	if err := s.ready(); err != nil {
		return core.RequestForProposal{}, err
	}
	rfpID = strings.TrimSpace(rfpID)
	if rfpID == "" {
		return core.RequestForProposal{}, core.BadInputError("rfp: rfp id is required", nil)
	}
	rfp, err := s.store.GetRFP(ctx, rfpID)
	if err != nil {
		return core.RequestForProposal{}, readError(err, "rfp: load request for proposal", map[string]any{"rfp_id": rfpID})
	}
	return rfp, nil
}

func (s *Service) Inbound() *inbound.Pipeline {
	if s == nil {
		return nil
	}
	return s.pipeline
}

// Consumer builds a bus consumer feeding the inbound pipeline.
func (s *Service) Consumer(source core.DeliverySource) *inbound.Consumer {
	if s == nil {
		return nil
	}
	return inbound.NewConsumer(source, s.pipeline, s.config.Consumer.MaxInFlight, s.consumer)
}

func (s *Service) ready() error {
	if s == nil || s.store == nil || s.creator == nil || s.sender == nil {
		return fmt.Errorf("rfp: service is not configured")
	}
	return nil
}

func acceptLockKey(rfpID string) string {
	return strings.TrimSpace(rfpID) + "#accept"
}

func readError(err error, message string, metadata map[string]any) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return err
	}
	return core.StoreUnavailableError(err, message, metadata)
}

func countSucceeded(results []core.SendResult) int {
	count := 0
	for _, result := range results {
		if result.Succeeded() {
			count++
		}
	}
	return count
}

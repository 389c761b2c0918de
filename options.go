package rfp

import (
	"time"

	"github.com/goliatone/go-rfp/core"
)

type Option func(*serviceBuilder)

type serviceBuilder struct {
	runtimeConfig     Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metricsRecorder   core.MetricsRecorder
	persistenceClient any
	repositoryFactory any
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	store             core.Store
	publisher         core.Publisher
	notifier          core.Publisher
	directory         core.Directory
	locker            core.NegotiationLocker
	newID             core.IDGenerator
	now               func() time.Time
}

func defaultServiceBuilder(cfg Config) serviceBuilder {
	return serviceBuilder{runtimeConfig: cfg}
}

func WithLogger(logger core.Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

// WithPersistenceClient is handed to the repository factory when stores are built.
func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

// WithRepositoryFactory accepts a core.RepositoryStoreFactory or a ready core.StoreProvider.
func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithStore(store core.Store) Option {
	return func(b *serviceBuilder) {
		b.store = store
	}
}

// WithPublisher sets the bus used for protocol messages to other companies.
func WithPublisher(publisher core.Publisher) Option {
	return func(b *serviceBuilder) {
		b.publisher = publisher
	}
}

// WithNotifier sets the bus used for internal notifications. Defaults to the publisher.
func WithNotifier(notifier core.Publisher) Option {
	return func(b *serviceBuilder) {
		b.notifier = notifier
	}
}

func WithDirectory(directory core.Directory) Option {
	return func(b *serviceBuilder) {
		b.directory = directory
	}
}

func WithLocker(locker core.NegotiationLocker) Option {
	return func(b *serviceBuilder) {
		b.locker = locker
	}
}

func WithIDGenerator(generator core.IDGenerator) Option {
	return func(b *serviceBuilder) {
		b.newID = generator
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

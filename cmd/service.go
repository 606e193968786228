package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"example.com/backstage/services/attendance/config"
	"example.com/backstage/services/attendance/internal/cache"
	"example.com/backstage/services/attendance/internal/clock"
	"example.com/backstage/services/attendance/internal/domain"
	"example.com/backstage/services/attendance/internal/eventbus"
	"example.com/backstage/services/attendance/internal/ledger"
	"example.com/backstage/services/attendance/internal/messaging"
	"example.com/backstage/services/attendance/internal/models"
	"example.com/backstage/services/attendance/internal/notify"
	"example.com/backstage/services/attendance/internal/orchestrator"
	"example.com/backstage/services/attendance/internal/outbox"
	"example.com/backstage/services/attendance/internal/payroll"
	"example.com/backstage/services/attendance/internal/repositories"
	"example.com/backstage/services/attendance/internal/schedule"
	"example.com/backstage/services/attendance/internal/search"
	"example.com/backstage/services/attendance/internal/tracing"
)

// runtime holds the wired service graph shared by the api and worker
// commands.
type runtime struct {
	cfg        config.Config
	ledger     *ledger.Ledger
	aggregator *payroll.Aggregator
	records    *repositories.AttendanceRepository
	contracts  *repositories.ContractRepository
	dispatcher *outbox.Dispatcher
	bus        *eventbus.Bus
	failures   chan *orchestrator.ChainFailure
	tracer     tracing.Tracer
	redisCache *cache.RedisCache
	busClient  messaging.ServiceBusClient
}

// buildRuntime wires repositories, the ledger, the event bus and the
// side-effect chains. The bus registry is sealed before this returns; no
// subscriber may be added afterwards.
func buildRuntime(cfg config.Config) (*runtime, error) {
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return nil, err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = nil
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = &tracing.NewRelicTracer{}
	}

	var indexer orchestrator.Indexer
	if cfg.Elastic.Enabled {
		elasticClient, err := search.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
		} else {
			indexer = elasticClient
		}
	}

	busClient, err := messaging.NewServiceBusClient(cfg.Azure)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Service Bus client, continuing without notifications")
		busClient = nil
	}

	// Repositories
	attendanceRepo := repositories.NewAttendanceRepository(db, readOnlyDB)
	eventRepo := repositories.NewEventRepository(db)
	contractRepo := repositories.NewContractRepository(readOnlyDB)
	holidayRepo := repositories.NewHolidayRepository(readOnlyDB)
	scheduleRepo := repositories.NewScheduleRepository(db)

	// Event pipeline
	bus := eventbus.New(64)
	dispatcher := outbox.NewDispatcher(bus, eventRepo)

	guard := ledger.Guard{
		MaxAttempts: cfg.Ledger.RetryBound,
		Backoff:     cfg.Ledger.RetryBackoff,
	}
	ledgerSvc := ledger.New(attendanceRepo, contractRepo, holidayRepo, dispatcher, guard, clock.System{}, ledger.Config{
		Tolerance:            cfg.Ledger.Tolerance,
		MinReasonLen:         cfg.Ledger.MinReasonLen,
		NightStartMin:        cfg.Wage.NightStartMin,
		NightEndMin:          cfg.Wage.NightEndMin,
		OvertimeThresholdMin: cfg.Wage.OvertimeThresholdMin,
		OvertimePremiumPct:   cfg.Wage.OvertimePremiumPct,
		NightPremiumPct:      cfg.Wage.NightPremiumPct,
		HolidayPremiumPct:    cfg.Wage.HolidayPremiumPct,
		WeeklyHolidayPct:     cfg.Wage.WeeklyHolidayPct,
		MonthlyBaseHours:     cfg.Wage.MonthlyBaseHours,
	})

	var summaryCache payroll.SummaryCache
	if redisCache != nil {
		summaryCache = redisCache
	}
	aggregator := payroll.NewAggregator(attendanceRepo, summaryCache, cfg.Worker.SummaryCacheTTL)

	// Side-effect chains
	failures := make(chan *orchestrator.ChainFailure, 64)
	orch := orchestrator.New(failures)
	generator := schedule.NewGenerator(scheduleRepo, cfg.Schedule.HorizonDays, cfg.Schedule.StartMin, cfg.Schedule.EndMin)
	notifier := notify.New(busClient)
	coordinator := orchestrator.NewCoordinator(orch, attendanceRepo, contractRepo, generator, notifier, indexer)
	if err := coordinator.Register(bus); err != nil {
		return nil, err
	}

	for _, kind := range []string{domain.AttendanceClockedIn, domain.AttendanceClockedOut, domain.AttendanceEdited} {
		if _, err := bus.Subscribe(kind, "summary-invalidation", aggregator.InvalidateOn); err != nil {
			return nil, err
		}
	}

	bus.Seal()

	return &runtime{
		cfg:        cfg,
		ledger:     ledgerSvc,
		aggregator: aggregator,
		records:    attendanceRepo,
		contracts:  contractRepo,
		dispatcher: dispatcher,
		bus:        bus,
		failures:   failures,
		tracer:     tracer,
		redisCache: redisCache,
		busClient:  busClient,
	}, nil
}

// reportFailures drains the chain-failure and delivery-failure channels for
// operator visibility until ctx is cancelled.
func (rt *runtime) reportFailures(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-rt.failures:
			log.Error().
				Err(f.Err).
				Str("chain", f.Chain).
				Str("step", f.Step).
				Strs("compensated", f.Compensated).
				Msg("Side-effect chain rolled back")
		case f := <-rt.bus.Failures():
			log.Warn().
				Err(f.Err).
				Str("subscriber", f.Subscriber).
				Str("event_kind", f.Event.Kind).
				Msg("Subscriber failed, reconciliation will retry")
		}
	}
}

// close releases runtime resources.
func (rt *runtime) close() {
	if rt.redisCache != nil {
		if err := rt.redisCache.Close(); err != nil {
			log.Warn().Err(err).Msg("Redis close error")
		}
	}
	if rt.busClient != nil {
		if err := rt.busClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Service Bus close error")
		}
	}
	if rt.tracer != nil {
		rt.tracer.Close()
	}
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	// TranslateError turns driver duplicate-key failures into
	// gorm.ErrDuplicatedKey, which the repositories depend on.
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	readOnlyDB, err := gorm.Open(postgres.Open(cfg.DB.ReadOnlyDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	if err := configurePool(db, cfg.DB.MaxOpenConns, cfg.DB.MaxIdleConns, cfg.DB.ConnMaxLifetime); err != nil {
		return nil, nil, errors.Wrap(err, "failed to configure write DB pool")
	}
	// The read-only pool gets higher limits for read traffic.
	if err := configurePool(readOnlyDB, cfg.DB.MaxOpenConns*2, cfg.DB.MaxIdleConns*2, cfg.DB.ConnMaxLifetime); err != nil {
		return nil, nil, errors.Wrap(err, "failed to configure read-only DB pool")
	}

	return db, readOnlyDB, nil
}

func configurePool(db *gorm.DB, maxOpen, maxIdle int, maxLifetime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(maxLifetime)
	return nil
}

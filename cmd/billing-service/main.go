package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dhoini/Billing-microservice/internal/api/rest"
	"github.com/Dhoini/Billing-microservice/internal/app"
	"github.com/Dhoini/Billing-microservice/internal/config"
	"github.com/Dhoini/Billing-microservice/internal/kafka"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/internal/repository/postgres"
	"github.com/Dhoini/Billing-microservice/internal/scheduler"
	"github.com/Dhoini/Billing-microservice/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// Инициализируем логгер
	log := initLogger()

	log.Infow("Billing microservice starting up...")

	// Загружаем конфигурацию
	cfg, err := config.LoadConfig("config.yml")
	if err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}

	// Устанавливаем режим Gin в зависимости от окружения
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Подключаемся к базе данных
	pool, err := postgres.Connect(context.Background(), cfg.Database.DSN, log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Infow("Database connection established")

	store := postgres.NewStore(pool, log)

	// Инициализируем Redis кеш для планов
	var planRepo repository.PlanRepository = store.Plans()
	if cfg.Redis.Enabled {
		redisCache, err := repository.NewRedisCacheRepository(
			cfg.Redis.Addr,
			cfg.Redis.Password,
			cfg.Redis.DB,
			log,
		)
		if err != nil {
			// Не фатально, но предупреждаем
			log.Warnw("Failed to initialize Redis cache, continuing without caching", "error", err)
		} else {
			log.Infow("Redis cache initialized successfully")
			defer func() {
				if err := redisCache.Close(); err != nil {
					log.Errorw("Error closing Redis connection", "error", err)
				}
			}()
			planRepo = repository.NewCachedPlanRepository(store.Plans(), redisCache, log)
			log.Infow("Using cached plan repository")
		}
	}

	// Инициализируем Kafka Producer
	var producer kafka.Producer = &kafka.NopProducer{}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureKafkaTopics(cfg.Kafka.Brokers, log); err != nil {
			log.Errorw("Failed to ensure Kafka topics", "error", err)
		}
		kafkaProducer, err := kafka.NewKafkaProducer(cfg.Kafka.Brokers, log)
		if err != nil {
			log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		} else {
			log.Infow("Kafka producer initialized")
			defer func() {
				if err := kafkaProducer.Close(); err != nil {
					log.Errorw("Error closing Kafka producer", "error", err)
				}
			}()
			producer = kafkaProducer
		}
	}

	// Собираем приложение
	application := app.NewApp(cfg, store, planRepo, producer, log)

	// Фоновая запись системных метрик
	application.System.StartRecording(15 * time.Second)
	defer application.System.Stop()

	// Запускаем планировщик проходов биллинга
	if cfg.Scheduler.Enabled {
		specs := scheduler.Specs{
			Billing:     cfg.Scheduler.BillingSpec,
			Retry:       cfg.Scheduler.RetrySpec,
			Lifecycle:   cfg.Scheduler.LifecycleSpec,
			Overpayment: cfg.Scheduler.OverpaymentSpec,
		}
		if err := application.Scheduler.Start(specs); err != nil {
			log.Fatalw("Failed to start scheduler", "error", err)
		}
		log.Infow("Scheduler started")
	}

	// Инициализируем HTTP сервер с роутами
	router := gin.New()
	rest.SetupRoutes(router, application.Handlers, application.Registry, log)

	httpServer := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Запускаем HTTP сервер в горутине
	go func() {
		log.Infow("Starting HTTP server", "port", cfg.App.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("Shutdown signal received")

	// Даем 10 секунд на завершение текущих запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if cfg.Scheduler.Enabled {
		log.Infow("Stopping scheduler")
		application.Scheduler.Stop()
	}

	log.Infow("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	} else {
		log.Infow("HTTP server gracefully stopped")
	}

	log.Infow("Cleanup finished. Goodbye!")
}

// initLogger инициализирует новый логгер
func initLogger() *logger.Logger {
	logLevel := logger.INFO
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = logger.DEBUG
	}
	return logger.New(logLevel)
}

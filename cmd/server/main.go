package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	attrstore "contactshare/internal/attribute/store"
	circlestore "contactshare/internal/circle/store"
	connstore "contactshare/internal/connection/store"
	messagestore "contactshare/internal/message/store"
	profilestore "contactshare/internal/profile/store"
	qrstore "contactshare/internal/qrcode/store"

	attrservice "contactshare/internal/attribute/service"
	"contactshare/internal/channels/dns"
	"contactshare/internal/channels/email"
	"contactshare/internal/channels/otp"
	"contactshare/internal/channels/sms"
	circleservice "contactshare/internal/circle/service"
	connservice "contactshare/internal/connection/service"
	jwttoken "contactshare/internal/jwt_token"
	messageservice "contactshare/internal/message/service"
	profileservice "contactshare/internal/profile/service"
	qrservice "contactshare/internal/qrcode/service"

	"contactshare/internal/platform/config"
	"contactshare/internal/platform/database"
	"contactshare/internal/platform/httpserver"
	"contactshare/internal/platform/kafka/producer"
	"contactshare/internal/platform/logger"
	"contactshare/internal/platform/metrics"
	platformredis "contactshare/internal/platform/redis"
	httptransport "contactshare/internal/transport/http"
	"contactshare/pkg/platform/audit"
	"contactshare/pkg/platform/audit/publisher"
	auditkafka "contactshare/pkg/platform/audit/store/kafka"
	auditmemory "contactshare/pkg/platform/audit/store/memory"
)

// main wires infrastructure, stores, services and the HTTP router.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	log.Info("initializing contactshare", "addr", cfg.Addr)

	m := metrics.New()

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.PostgresURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close() //nolint:errcheck // shutdown path
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // shutdown path
	}

	// Audit trail: Kafka when brokers are configured, in-memory
	// otherwise.
	var auditStore audit.Store
	if cfg.KafkaBrokers != "" {
		kafkaProducer, err := producer.New(producer.Config{
			Brokers:         cfg.KafkaBrokers,
			Retries:         3,
			DeliveryTimeout: 10 * time.Second,
		}, log)
		if err != nil {
			log.Error("kafka init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaProducer.Close() //nolint:errcheck // shutdown path
		auditStore = auditkafka.New(kafkaProducer, "")
	} else {
		log.Warn("kafka not configured; audit events stay in memory")
		auditStore = auditmemory.NewInMemoryStore()
	}
	auditPub := publisher.NewPublisher(auditStore, publisher.WithLogger(log))
	defer auditPub.Close()

	// Stores: postgres when configured, in-memory otherwise.
	var (
		attributes  attrstore.Store
		circles     circlestore.Store
		connections connstore.Store
		messages    messagestore.Store
		profiles    profilestore.Store
		blocks      profilestore.BlockStore
		qrcodes     qrstore.Store
	)
	if pool != nil {
		attributes = attrstore.NewPostgres(pool.DB())
		circles = circlestore.NewPostgres(pool.DB())
		connections = connstore.NewPostgres(pool.DB())
		messages = messagestore.NewPostgres(pool.DB())
		profiles = profilestore.NewPostgres(pool.DB())
		blocks = profilestore.NewPostgresBlockStore(pool.DB())
		qrcodes = qrstore.NewPostgres(pool.DB())
	} else {
		log.Warn("postgres not configured; using in-memory stores")
		attributes = attrstore.NewInMemory()
		circles = circlestore.NewInMemory()
		connections = connstore.NewInMemory()
		messages = messagestore.NewInMemory()
		profiles = profilestore.NewInMemory()
		blocks = profilestore.NewInMemoryBlockStore()
		qrcodes = qrstore.NewInMemory()
	}

	// Outbound channels fall back to log-only delivery when
	// unconfigured.
	var emailSender messageservice.EmailChannel = &email.LogSender{Logger: log}
	if cfg.SMTPHost != "" {
		emailSender = email.NewSender(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}
	var smsSender messageservice.SMSChannel = &sms.LogSender{Logger: log}
	if cfg.SMSGatewayURL != "" {
		smsSender = sms.NewSender(sms.Config{URL: cfg.SMSGatewayURL, APIKey: cfg.SMSAPIKey})
	}

	var otpIssuer *otp.Issuer
	if redisClient != nil {
		otpIssuer = otp.NewIssuer(redisClient, config.OTPCodeTTL)
	} else {
		log.Warn("redis not configured; verification codes stay in process")
		otpIssuer = otp.NewIssuer(otp.NewMemoryClient(), config.OTPCodeTTL)
	}

	messageSvc := messageservice.New(messages, emailSender, smsSender,
		messageservice.WithLogger(log),
		messageservice.WithMetrics(m),
	)
	circleSvc := circleservice.New(circles, attributes,
		circleservice.WithLogger(log),
	)
	attributeSvc := attrservice.New(attributes, messageSvc, otpIssuer, smsSender, dns.NewVerifier(nil), circleSvc,
		attrservice.WithLogger(log),
		attrservice.WithMetrics(m),
		attrservice.WithAuditPublisher(auditPub),
	)
	profileSvc := profileservice.New(profiles, blocks, attributeSvc, circleSvc,
		profileservice.WithLogger(log),
		profileservice.WithMetrics(m),
		profileservice.WithAuditPublisher(auditPub),
		profileservice.WithPendingLimit(cfg.PendingLimit),
	)
	connectionSvc := connservice.New(connections, messageSvc, circleSvc, profileSvc,
		connservice.WithLogger(log),
		connservice.WithMetrics(m),
		connservice.WithAuditPublisher(auditPub),
		connservice.WithUsersLimit(cfg.UsersLimit),
	)
	qrcodeSvc := qrservice.New(qrcodes, connectionSvc, circles,
		qrservice.WithLogger(log),
		qrservice.WithAuditPublisher(auditPub),
	)

	// Late binds close the module cycles: profile needs quick-connect
	// tokens, attribute needs the directory and the rebinder.
	profileSvc.SetTokens(qrcodeSvc)
	attributeSvc.SetDirectory(profileSvc)
	attributeSvc.SetRebinder(connectionSvc)

	jwtSvc := jwttoken.NewJWTService(cfg.JWTSigningKey, "contactshare", "contactshare")

	handlers := httptransport.Handlers{
		Profile:    httptransport.NewProfileHandler(profileSvc, log),
		Attribute:  httptransport.NewAttributeHandler(attributeSvc, log),
		Circle:     httptransport.NewCircleHandler(circleSvc, connectionSvc, log),
		Connection: httptransport.NewConnectionHandler(connectionSvc, log),
		Message:    httptransport.NewMessageHandler(messageSvc, log),
		QRCode:     httptransport.NewQRCodeHandler(qrcodeSvc, log),
	}
	router := httptransport.NewRouter(handlers, jwtSvc, log)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

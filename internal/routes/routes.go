package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"invoice-hawk-backend/internal/config"
	handler "invoice-hawk-backend/internal/handlers"
	"invoice-hawk-backend/internal/repository"
	"invoice-hawk-backend/internal/services/approval"
	"invoice-hawk-backend/internal/services/extraction"
	"invoice-hawk-backend/internal/services/lifecycle"
	"invoice-hawk-backend/internal/services/matching"
	"invoice-hawk-backend/internal/services/notification"
	"invoice-hawk-backend/internal/services/posting"
	"invoice-hawk-backend/internal/services/processing"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config, log *zap.Logger) {
	invoiceRepo := repository.NewInvoiceRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	postingRepo := repository.NewPostingRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	lifecycleSvc := lifecycle.New(invoiceRepo, log)

	var extractor extraction.Extractor
	if cfg.Extractor == "vision" {
		extractor = extraction.NewVisionExtractor(cfg.ExtractorURL, cfg.ExtractorAPIKey)
	} else {
		extractor = extraction.NewStubExtractor()
	}

	engine := matching.NewEngine(matching.Config{
		QtyTolerance:   cfg.QtyTolerance,
		PriceTolerance: cfg.PriceTolerance,
		LineKey:        cfg.LineKey,
	})
	poLookup := matching.NewHTTPPOLookup(cfg.POLookupURL)

	var notifier notification.Notifier = notification.NopNotifier{}
	if cfg.NotifyWebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.NotifyWebhookURL)
	}

	procSvc := processing.New(
		extractor,
		poLookup,
		engine,
		lifecycleSvc,
		notifier,
		&repository.ProcessingStore{InvoiceRepository: invoiceRepo, MatchRepository: matchRepo},
		cfg.ReviewChannel,
		cfg.ReviewChannelDefault,
		log,
	)
	gateway := approval.NewGateway(cfg.SigningSecret, cfg.FreshnessWindow, lifecycleSvc, approvalRepo, log)
	ledger := posting.NewLedgerClient(cfg.LedgerBaseURL, cfg.LedgerMaxRetries, cfg.LedgerBackoff)
	guard := posting.NewGuard(postingRepo, ledger, lifecycleSvc, log)

	invoiceHandler := handler.NewInvoiceHandler(procSvc, gateway, guard, lifecycleSvc, auditRepo, matchRepo, log)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Pipeline stage triggers
	api.POST("/artifacts/extract", invoiceHandler.ExtractArtifact)

	invoices := api.Group("/invoices")
	{
		invoices.GET("/:id", invoiceHandler.GetInvoice)
		invoices.GET("/:id/audit", invoiceHandler.GetAuditTrail)
		invoices.POST("/:id/match", invoiceHandler.MatchInvoice)
		invoices.POST("/:id/request-approval", invoiceHandler.RequestApproval)
		invoices.POST("/:id/post", invoiceHandler.PostInvoice)
		invoices.POST("/:id/void", invoiceHandler.VoidInvoice)
	}

	// External decision callbacks
	webhooks := api.Group("/webhooks")
	webhooks.POST("/approval", invoiceHandler.ApprovalWebhook)
}

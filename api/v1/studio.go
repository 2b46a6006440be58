package v1

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/auth"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/bulk"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/config"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/documents"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/envelopes"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/placement"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/vision"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/pdf"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/security"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/storage"
)

// Services holds the domain services shared by the API and the workers.
type Services struct {
	Storage   *documents.StorageProvider
	Pipeline  *documents.Pipeline
	Tokens    *security.TokenIssuer
	Documents documents.Service
	Envelopes *envelopes.Service
}

// NewObjectStore returns the configured object store.
func NewObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.S3Client, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return storage.NewMemoryClient(), nil
	case "s3":
		return storage.NewS3Client(ctx, storage.S3Options{
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UsePathStyle:    cfg.UsePathStyle,
		})
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// NewPipeline builds the document pipeline from the rendering settings.
func NewPipeline(cfg config.RenderingConfig, logger *zap.Logger) *documents.Pipeline {
	rasterizer := documents.NewRasterizer(documents.RasterizerOptions{
		PDFToPPM: cfg.PDFToPPMCommand,
		Soffice:  cfg.SofficeCommand,
		DPI:      cfg.PreviewDPI,
		Timeout:  cfg.CommandTimeout.Std(),
	}, logger)
	return documents.NewPipeline(rasterizer, pdf.NewComposer(pdf.DefaultOptions()), documents.PipelineOptions{
		PreviewWidth: cfg.PreviewWidth,
		JPEGQuality:  cfg.JPEGQuality,
		StampScale:   cfg.RasterScale,
	}, logger)
}

// NewNotifier mails signers through SES when a sender is configured and
// logs invitations otherwise.
func NewNotifier(ctx context.Context, cfg config.EmailConfig, logger *zap.Logger) (envelopes.Notifier, error) {
	if cfg.Sender == "" {
		logger.Warn("EMAIL_SENDER not set, signer invitations will only be logged")
		return envelopes.NewLogNotifier(logger), nil
	}
	return envelopes.NewSESNotifier(ctx, cfg.Region, cfg.Sender, logger)
}

// BuildServices wires storage, the pipeline and the persistent services.
func BuildServices(ctx context.Context, cfg *config.Config, db *sqlx.DB, gdb *gorm.DB, logger *zap.Logger) (*Services, error) {
	store, err := NewObjectStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	provider := documents.NewStorageProvider(store, cfg.Storage.Bucket, cfg.Storage.PresignTTL.Std())
	pipeline := NewPipeline(cfg.Rendering, logger)
	tokens := security.NewTokenIssuer(cfg.Security.JWTSecret, cfg.Security.TokenIssuer, cfg.Security.SessionTTL.Std())

	notifier, err := NewNotifier(ctx, cfg.Email, logger)
	if err != nil {
		return nil, err
	}

	return &Services{
		Storage:   provider,
		Pipeline:  pipeline,
		Tokens:    tokens,
		Documents: documents.NewService(documents.NewRepository(db), provider, pipeline, logger),
		Envelopes: envelopes.NewService(envelopes.NewRepository(gdb), provider, pipeline, tokens, notifier, envelopes.Options{
			PublicBaseURL: cfg.Email.PublicBaseURL,
			LinkTTL:       cfg.Security.SignerLinkTTL.Std(),
		}, logger),
	}, nil
}

// StudioAPI holds the HTTP handlers and the in-process services behind them.
type StudioAPI struct {
	*Services
	Bulk     *bulk.Service
	Progress *bulk.ProgressHub
	Auth     *auth.Service

	stampHandler     *stamp.Handler
	placementHandler *placement.Handler
	documentsHandler *documents.Handler
	envelopesHandler *envelopes.Handler
	bulkHandler      *bulk.Handler
	authHandler      *auth.Handler
	allowedOrigins   []string
	logger           *zap.Logger
}

// SetupStudioAPI sets up every API module with its dependencies.
func SetupStudioAPI(ctx context.Context, cfg *config.Config, db *sqlx.DB, gdb *gorm.DB, logger *zap.Logger) (*StudioAPI, error) {
	services, err := BuildServices(ctx, cfg, db, gdb, logger)
	if err != nil {
		return nil, err
	}
	maxUpload := cfg.Server.MaxUploadMB << 20

	var analyzer stamp.Analyzer
	if cfg.Vision.APIKey != "" {
		client, err := vision.NewClient(ctx, vision.Options{
			BaseURL:    cfg.Vision.BaseURL,
			APIVersion: cfg.Vision.APIVersion,
			Model:      cfg.Vision.Model,
			APIKey:     cfg.Vision.APIKey,
			Timeout:    cfg.Vision.Timeout.Std(),
		}, logger)
		if err != nil {
			return nil, err
		}
		analyzer = client
	}

	progress := bulk.NewProgressHub(OriginChecker(cfg.Server.AllowedOrigins), logger)
	bulkService := bulk.NewService(services.Pipeline, services.Storage, progress, bulk.Options{
		JobTTL:      cfg.Bulk.JobTTL.Std(),
		MaxFiles:    cfg.Bulk.MaxFiles,
		ArchiveName: cfg.Bulk.ArchiveName,
		Pricing:     bulk.Pricing{PricePerPage: cfg.Pricing.PricePerPage, Currency: cfg.Pricing.Currency},
	}, logger)

	authService := auth.NewService(auth.Options{
		ClientID:     cfg.OAuth.GoogleClientID,
		ClientSecret: cfg.OAuth.GoogleClientSecret,
		RedirectURL:  cfg.OAuth.GoogleRedirectURL,
		StateTTL:     cfg.OAuth.StateTTL.Std(),
	}, services.Tokens, logger)
	authHandler, err := auth.NewHandler(authService, openerOrigin(cfg.Email.PublicBaseURL, cfg.Server.AllowedOrigins), logger)
	if err != nil {
		authService.Close()
		bulkService.Close()
		progress.Close()
		return nil, fmt.Errorf("oauth callback needs email.public_base_url or a concrete server.allowed_origins entry: %w", err)
	}

	return &StudioAPI{
		Services:         services,
		Bulk:             bulkService,
		Progress:         progress,
		Auth:             authService,
		stampHandler:     stamp.NewHandler(stamp.NewService(analyzer, cfg.Rendering.RasterScale, logger), logger),
		placementHandler: placement.NewHandler(logger),
		documentsHandler: documents.NewHandler(services.Documents, maxUpload, logger),
		envelopesHandler: envelopes.NewHandler(services.Envelopes, maxUpload, logger),
		bulkHandler:      bulk.NewHandler(bulkService, progress, maxUpload, logger),
		authHandler:      authHandler,
		allowedOrigins:   cfg.Server.AllowedOrigins,
		logger:           logger,
	}, nil
}

// RegisterRoutes mounts the OAuth routes under /api and everything else
// under /api/v1.
func (a *StudioAPI) RegisterRoutes(router *gin.Engine) {
	router.Use(CORS(a.allowedOrigins), auth.SessionMiddleware(a.Auth))

	a.authHandler.RegisterRoutes(router.Group("/api"))

	api := router.Group("/api/v1")
	{
		a.stampHandler.RegisterRoutes(api)
		a.placementHandler.RegisterRoutes(api)
		a.documentsHandler.RegisterRoutes(api)
		a.envelopesHandler.RegisterRoutes(api)
		a.bulkHandler.RegisterRoutes(api)
	}
}

// Close stops background janitors and closes progress sockets.
func (a *StudioAPI) Close() {
	a.Bulk.Close()
	a.Progress.Close()
	a.Auth.Close()
}

// CORS answers preflight requests and echoes allowed origins. "*" allows
// every origin.
func CORS(origins []string) gin.HandlerFunc {
	allowed := OriginChecker(origins)
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" && allowed(c.Request) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Access-Code")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
			c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, "+documents.HeaderDocumentID)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// OriginChecker reports whether a request's Origin is in origins. Requests
// without an Origin header are allowed.
func OriginChecker(origins []string) func(r *http.Request) bool {
	wildcard := slices.Contains(origins, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		return slices.Contains(origins, origin)
	}
}

// openerOrigin is the origin of the public base URL, or the first concrete
// CORS origin when no base URL is configured.
func openerOrigin(publicBaseURL string, allowed []string) string {
	if publicBaseURL == "" {
		for _, origin := range allowed {
			if origin != "*" {
				return origin
			}
		}
		return ""
	}
	if i := strings.Index(publicBaseURL, "://"); i >= 0 {
		if j := strings.IndexByte(publicBaseURL[i+3:], '/'); j >= 0 {
			return publicBaseURL[:i+3+j]
		}
	}
	return publicBaseURL
}

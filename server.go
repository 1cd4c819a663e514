package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Roon627/ITnVend-sub003/config"
	"github.com/Roon627/ITnVend-sub003/middlewares"
	"github.com/Roon627/ITnVend-sub003/models"
	"github.com/Roon627/ITnVend-sub003/utils"
	"github.com/Roon627/ITnVend-sub003/workflow"
)

const defaultPort = "8080"

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// httpStatusForError maps engine error kinds to transport responses. Raw
// storage failures surface as 503 with a generic message.
func httpStatusForError(err error) int {
	var (
		notFound          *models.NotFoundError
		invalidTransition *models.InvalidTransitionError
		insufficientStock *models.InsufficientStockError
		invalidQuantity   *models.InvalidQuantityError
		emptyDocument     *models.EmptyDocumentError
		chartIncomplete   *models.ChartOfAccountsIncompleteError
		storage           *models.StorageUnavailableError
	)
	switch {
	case errors.As(err, &notFound), errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.As(err, &invalidTransition), errors.As(err, &insufficientStock):
		return http.StatusConflict
	case errors.As(err, &invalidQuantity), errors.As(err, &emptyDocument):
		return http.StatusBadRequest
	case errors.As(err, &chartIncomplete):
		return http.StatusUnprocessableEntity
	case errors.As(err, &storage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func abortWithError(c *gin.Context, err error) {
	status := httpStatusForError(err)
	message := err.Error()
	if status == http.StatusServiceUnavailable {
		message = "storage unavailable"
	}
	c.JSON(status, gin.H{"error": message})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func createDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewInvoiceDocument
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.OutletId == 0 {
			// Fall back to the session outlet when the body omits one.
			if outletId, ok := utils.GetOutletIdFromContext(c.Request.Context()); ok {
				input.OutletId = outletId
			}
		}
		doc, err := workflow.CreateDocument(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, doc)
	}
}

func listDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var kind *models.DocumentKind
		if param := c.Query("kind"); param != "" {
			k := models.DocumentKind(param)
			if !k.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document kind"})
				return
			}
			kind = &k
		}
		docs, err := models.GetDocuments(c.Request.Context(), kind)
		if err != nil {
			abortWithError(c, models.WrapStorageError("listDocuments", err))
			return
		}
		c.JSON(http.StatusOK, docs)
	}
}

func getDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		doc, err := models.GetDocument(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, models.WrapStorageError("getDocument", err))
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func editDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input struct {
			LineItems []models.NewLineItem `json:"line_items" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		doc, err := workflow.EditDocument(c.Request.Context(), id, input.LineItems)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func convertDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		doc, err := workflow.ConvertQuoteToInvoice(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func transitionStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status, err := models.ParseDocumentStatus(input.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		doc, err := workflow.TransitionStatus(c.Request.Context(), id, status)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func deleteDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := workflow.DeleteDocument(c.Request.Context(), id); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func createProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		product, err := models.CreateProduct(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	}
}

func listProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := models.GetProducts(c.Request.Context())
		if err != nil {
			abortWithError(c, models.WrapStorageError("listProducts", err))
			return
		}
		c.JSON(http.StatusOK, products)
	}
}

func getProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		product, err := models.GetProduct(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, models.WrapStorageError("getProduct", err))
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func stockHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		records, err := models.GetStockHistory(c.Request.Context(), config.GetDB(), id)
		if err != nil {
			abortWithError(c, models.WrapStorageError("stockHistory", err))
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func adjustStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input struct {
			NewQuantity *int    `json:"new_quantity" binding:"required"`
			Reference   *string `json:"reference"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		product, err := workflow.AdjustStock(c.Request.Context(), id, *input.NewQuantity, input.Reference)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func createOutletHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOutlet
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outlet, err := models.CreateOutlet(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, outlet)
	}
}

func listOutletsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		outlets, err := models.GetOutlets(c.Request.Context())
		if err != nil {
			abortWithError(c, models.WrapStorageError("listOutlets", err))
			return
		}
		c.JSON(http.StatusOK, outlets)
	}
}

func createCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCustomer
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		customer, err := models.CreateCustomer(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, customer)
	}
}

func listCustomersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		customers, err := models.GetCustomers(c.Request.Context())
		if err != nil {
			abortWithError(c, models.WrapStorageError("listCustomers", err))
			return
		}
		c.JSON(http.StatusOK, customers)
	}
}

func createAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAccount
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		account, err := models.CreateAccount(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, account)
	}
}

func listAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accounts, err := models.GetAccounts(c.Request.Context())
		if err != nil {
			abortWithError(c, models.WrapStorageError("listAccounts", err))
			return
		}
		c.JSON(http.StatusOK, accounts)
	}
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		for _, ginErr := range c.Errors {
			logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"status": c.Writer.Status(),
			}).Error(ginErr.Error())
		}
	}
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server before dependencies are up; the readiness gate
	// returns 503 for app endpoints until the database is connected.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-actor-id", "x-actor-name", "x-outlet-id", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/documents", createDocumentHandler())
	r.GET("/documents", listDocumentsHandler())
	r.GET("/documents/:id", getDocumentHandler())
	r.PUT("/documents/:id/line-items", editDocumentHandler())
	r.POST("/documents/:id/convert", convertDocumentHandler())
	r.POST("/documents/:id/status", transitionStatusHandler())
	r.DELETE("/documents/:id", deleteDocumentHandler())

	r.POST("/products", createProductHandler())
	r.GET("/products", listProductsHandler())
	r.GET("/products/:id", getProductHandler())
	r.GET("/products/:id/stock-history", stockHistoryHandler())
	r.PUT("/products/:id/stock", adjustStockHandler())

	r.POST("/outlets", createOutletHandler())
	r.GET("/outlets", listOutletsHandler())

	r.POST("/customers", createCustomerHandler())
	r.GET("/customers", listCustomersHandler())

	r.POST("/accounts", createAccountHandler())
	r.GET("/accounts", listAccountsHandler())

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations
	// as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start outbox dispatcher (publishes AFTER commit).
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewOutboxDispatcher(db, logger).Run(dispatcherCtx)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on :", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work mid-drain.
	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// facilitatord serves the x402 facilitator API: verify and settle
// stablecoin payments on EVM chains and Solana clusters over HTTP.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	facilitator "github.com/regent-ai/x402-facilitator"
	mechevm "github.com/regent-ai/x402-facilitator/mechanisms/evm"
	mechsvm "github.com/regent-ai/x402-facilitator/mechanisms/svm"
	signerevm "github.com/regent-ai/x402-facilitator/signers/evm"
	signersvm "github.com/regent-ai/x402-facilitator/signers/svm"
)

const (
	verifyTimeout = 30 * time.Second
	settleTimeout = 60 * time.Second
)

func main() {
	godotenv.Load()

	log := logrus.New()
	cfg, err := loadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	registry := facilitator.NewRegistry()
	if err := registerSchemes(registry, cfg, log); err != nil {
		log.WithError(err).Fatal("failed to register payment mechanisms")
	}

	opts := []facilitator.Option{facilitator.WithLogger(log)}
	if cfg.SettlementCacheTTL > 0 {
		opts = append(opts, facilitator.WithSettlementCache(cfg.SettlementCacheTTL))
	}
	f := facilitator.New(registry, opts...)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/supported", func(c *gin.Context) {
		c.JSON(http.StatusOK, f.Supported())
	})

	r.POST("/verify", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), verifyTimeout)
		defer cancel()

		payload, requirements, ok := bindPaymentRequest(c)
		if !ok {
			return
		}

		result, err := f.Verify(ctx, payload, requirements)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	r.POST("/settle", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), settleTimeout)
		defer cancel()

		payload, requirements, ok := bindPaymentRequest(c)
		if !ok {
			return
		}

		result, err := f.Settle(ctx, payload, requirements)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	log.WithField("port", cfg.Port).Info("facilitator listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

// registerSchemes wires one scheme instance per configured network, for
// both protocol versions.
func registerSchemes(registry *facilitator.Registry, cfg *config, log *logrus.Logger) error {
	if cfg.EVMPrivateKey != "" {
		for _, network := range cfg.EVMNetworks {
			signer, err := signerevm.NewSigner(cfg.EVMPrivateKey, network.RPCURL)
			if err != nil {
				return err
			}

			opts := []mechevm.Option{
				mechevm.WithLogger(log),
				mechevm.WithWalletDeployment(cfg.DeployWallets),
			}
			registry.Register(facilitator.Network(network.CAIP2), mechevm.NewExactScheme(signer, opts...))
			registry.RegisterV1(facilitator.Network(network.LegacyName), mechevm.NewExactSchemeV1(signer, opts...))

			log.WithFields(logrus.Fields{
				"network": network.CAIP2,
				"signer":  signer.Address(),
			}).Info("registered evm exact scheme")
		}
	}

	if cfg.SVMPrivateKey != "" {
		rpcURLs := make(map[string]string, len(cfg.SVMNetworks))
		for _, network := range cfg.SVMNetworks {
			rpcURLs[network.CAIP2] = network.RPCURL
		}
		signer, err := signersvm.NewSigner(cfg.SVMPrivateKey, rpcURLs)
		if err != nil {
			return err
		}

		for _, network := range cfg.SVMNetworks {
			registry.Register(facilitator.Network(network.CAIP2), mechsvm.NewExactScheme(signer, mechsvm.WithLogger(log)))
			registry.RegisterV1(facilitator.Network(network.LegacyName), mechsvm.NewExactSchemeV1(signer, mechsvm.WithLogger(log)))

			log.WithFields(logrus.Fields{
				"network":  network.CAIP2,
				"feePayer": signer.GetAddress(context.Background(), network.CAIP2).String(),
			}).Info("registered svm exact scheme")
		}
	}

	return nil
}

func bindPaymentRequest(c *gin.Context) (payload, requirements []byte, ok bool) {
	var reqBody struct {
		PaymentPayload      json.RawMessage `json:"paymentPayload"`
		PaymentRequirements json.RawMessage `json:"paymentRequirements"`
	}
	if err := c.BindJSON(&reqBody); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return nil, nil, false
	}
	if len(reqBody.PaymentPayload) == 0 || len(reqBody.PaymentRequirements) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paymentPayload and paymentRequirements are required"})
		return nil, nil, false
	}
	return reqBody.PaymentPayload, reqBody.PaymentRequirements, true
}

// requestLogger tags every request with an id and logs its outcome.
func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Info("request completed")
	}
}

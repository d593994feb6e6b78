// Package lark adapts the Lark messaging APIs to the platform gateway
// surface the bot is written against.
package lark

import (
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"
)

// Client wraps the Lark SDK client
type Client struct {
	client *lark.Client
	appID  string
	logger *zap.Logger
}

// Config holds Lark client configuration
type Config struct {
	AppID             string
	AppSecret         string
	VerificationToken string
	EncryptKey        string
	Timeout           time.Duration
}

// NewClient creates a new Lark client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, lark.WithReqTimeout(cfg.Timeout))
	}
	client := lark.NewClient(cfg.AppID, cfg.AppSecret, opts...)

	return &Client{
		client: client,
		appID:  cfg.AppID,
		logger: logger,
	}
}

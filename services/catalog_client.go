package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrProductNotFound = errors.New("product not found")

type Product struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Price int64     `json:"price"`
	Stock int       `json:"stock"`
}

// Catalog is the product collaborator.
type Catalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
}

// HTTPCatalog calls the product service's internal endpoint and keeps a
// short-lived copy of each product in Redis when a client is configured.
type HTTPCatalog struct {
	baseURL string
	client  *http.Client
	cache   *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
}

func NewHTTPCatalog(baseURL string, cache *redis.Client, logger *zap.Logger) *HTTPCatalog {
	if baseURL == "" {
		baseURL = "http://product-service:8082"
	}
	return &HTTPCatalog{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   cache,
		ttl:     30 * time.Second,
		logger:  logger,
	}
}

func productCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("catalog:product:%s", id)
}

func (c *HTTPCatalog) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	if c.cache != nil {
		cached, err := c.cache.Get(ctx, productCacheKey(id)).Result()
		if err == nil {
			var prod Product
			if jsonErr := json.Unmarshal([]byte(cached), &prod); jsonErr == nil {
				return &prod, nil
			}
		} else if err != redis.Nil {
			c.logger.Warn("Product cache read failed", zap.String("product_id", id.String()), zap.Error(err))
		}
	}

	url := fmt.Sprintf("%s/products/internal/%s", c.baseURL, id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrProductNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product service returned %d", resp.StatusCode)
	}

	var prod Product
	if err := json.NewDecoder(resp.Body).Decode(&prod); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if data, err := json.Marshal(prod); err == nil {
			if err := c.cache.Set(ctx, productCacheKey(id), data, c.ttl).Err(); err != nil {
				c.logger.Warn("Product cache write failed", zap.String("product_id", id.String()), zap.Error(err))
			}
		}
	}
	return &prod, nil
}

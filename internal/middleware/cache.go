package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CacheConfig represents cache control configuration
type CacheConfig struct {
	MaxAge         int
	Private        bool
	NoStore        bool
	NoCache        bool
	MustRevalidate bool
	Vary           []string
}

// DefaultCacheConfig suits the doctor catalog, which only changes on restart.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge:         300,
		MustRevalidate: true,
		Vary:           []string{"Accept"},
	}
}

// NoStoreConfig is for availability grids, sessions and admin data, which
// change with every booking.
func NoStoreConfig() CacheConfig {
	return CacheConfig{Private: true, NoStore: true}
}

func (cfg CacheConfig) directives() string {
	var d []string
	if cfg.Private {
		d = append(d, "private")
	} else if !cfg.NoStore {
		d = append(d, "public")
	}
	if cfg.NoStore {
		d = append(d, "no-store")
	} else if cfg.MaxAge > 0 {
		d = append(d, "max-age="+strconv.Itoa(cfg.MaxAge))
	}
	if cfg.NoCache {
		d = append(d, "no-cache")
	}
	if cfg.MustRevalidate {
		d = append(d, "must-revalidate")
	}
	return strings.Join(d, ", ")
}

// Cache adds cache control headers to GET responses. Other methods are
// always no-store.
func Cache(config CacheConfig) gin.HandlerFunc {
	value := config.directives()
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Header("Cache-Control", "no-store")
			c.Next()
			return
		}

		if value != "" {
			c.Header("Cache-Control", value)
		}
		if len(config.Vary) > 0 {
			c.Header("Vary", strings.Join(config.Vary, ", "))
		}
		c.Next()
	}
}

// Package health 提供各依赖的健康检查函数与聚合 HTTP 端点.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wyfcoding/gridstore/engine"
	"github.com/wyfcoding/gridstore/storage"
)

// Checker 定义健康检查函数原型.
type Checker func() error

// EngineChecker 返回存储引擎就绪检查函数：连接必须处于 Open 状态.
func EngineChecker(e *engine.Engine) Checker {
	return func() error {
		if e == nil {
			return errors.New("engine is nil")
		}
		if state := e.ConnState(); state != engine.StateOpen {
			return fmt.Errorf("storage connection is %s", state)
		}
		return nil
	}
}

// BackendChecker 返回后端连通性检查函数.
func BackendChecker(b storage.Backend, timeout time.Duration) Checker {
	return func() error {
		if b == nil {
			return errors.New("storage backend is nil")
		}
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := b.Ping(ctx); err != nil {
			return fmt.Errorf("storage backend ping failed: %w", err)
		}
		return nil
	}
}

// Handler 聚合多个检查项，全部通过返回 200，否则 503 并附失败明细.
func Handler(checks map[string]Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		failures := make(map[string]string)
		for name, check := range checks {
			if err := check(); err != nil {
				failures[name] = err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":   "unhealthy",
				"failures": failures,
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
}

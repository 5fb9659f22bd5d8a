package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultMongoProbeTimeout = 2 * time.Second

// MongoChecker 返回按 URI 一次性拨号探活 MongoDB 的检查函数.
// 与 EngineChecker 互补：引擎连接是终态的，落入 Failed 后不再重连，
// 该检查仍能反映数据库本身是否已恢复可达.
func MongoChecker(uri string, timeout time.Duration) Checker {
	if timeout <= 0 {
		timeout = defaultMongoProbeTimeout
	}
	return func() error {
		if uri == "" {
			return errors.New("mongodb uri is not configured")
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return fmt.Errorf("mongodb connect failed: %w", err)
		}
		defer func() {
			_ = client.Disconnect(context.Background())
		}()

		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			return fmt.Errorf("mongodb ping failed: %w", err)
		}
		return nil
	}
}

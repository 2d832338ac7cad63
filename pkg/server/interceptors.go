package server

import (
	"context"
	"fmt"

	"licensekeeper/pkg/errutil"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/validator"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// InterceptorLogger adapts zap to the go-grpc-middleware logging interface.
func InterceptorLogger(l *zap.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		f := make([]zap.Field, 0, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			key := fmt.Sprint(fields[i])
			switch v := fields[i+1].(type) {
			case string:
				f = append(f, zap.String(key, v))
			case int:
				f = append(f, zap.Int(key, v))
			case bool:
				f = append(f, zap.Bool(key, v))
			default:
				f = append(f, zap.Any(key, v))
			}
		}

		logger := l.WithOptions(zap.AddCallerSkip(1)).With(f...)
		switch lvl {
		case logging.LevelDebug:
			logger.Debug(msg)
		case logging.LevelInfo:
			logger.Info(msg)
		case logging.LevelWarn:
			logger.Warn(msg)
		default:
			logger.Error(msg)
		}
	})
}

func recoverPanic(p any) error {
	zap.L().Error("recovered from panic in gRPC handler", zap.Any("panic", p))
	return errutil.ToGRPCError(errutil.Internal(errutil.InternalMessage, fmt.Errorf("panic: %v", p)))
}

func unaryInterceptors() grpc.ServerOption {
	return grpc.ChainUnaryInterceptor(
		recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(recoverPanic)),
		logging.UnaryServerInterceptor(InterceptorLogger(zap.L()), logging.WithLogOnEvents(logging.FinishCall)),
		validator.UnaryServerInterceptor(validator.WithFailFast()),
	)
}

func streamInterceptors() grpc.ServerOption {
	return grpc.ChainStreamInterceptor(
		recovery.StreamServerInterceptor(recovery.WithRecoveryHandler(recoverPanic)),
		logging.StreamServerInterceptor(InterceptorLogger(zap.L()), logging.WithLogOnEvents(logging.FinishCall)),
		validator.StreamServerInterceptor(validator.WithFailFast()),
	)
}

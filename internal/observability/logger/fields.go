package logger

import (
	"time"

	"go.uber.org/zap"
)

// HTTP fields

func RequestID(v string) zap.Field   { return zap.String("request_id", v) }
func Method(v string) zap.Field      { return zap.String("method", v) }
func Path(v string) zap.Field        { return zap.String("path", v) }
func Status(v int) zap.Field         { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field    { return zap.String("client_ip", v) }

// Domain fields

func TenantID(v string) zap.Field   { return zap.String("tenant_id", v) }
func TenantName(v string) zap.Field { return zap.String("tenant_name", v) }
func UserID(v string) zap.Field     { return zap.String("user_id", v) }
func SessionID(v string) zap.Field  { return zap.String("session_id", v) }
func Email(v string) zap.Field      { return zap.String("email", v) }

// System fields

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

// Generic fields

func Count(v int) zap.Field      { return zap.Int("count", v) }
func ID(v string) zap.Field      { return zap.String("id", v) }
func Key(v string) zap.Field     { return zap.String("key", v) }
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
func String(key, v string) zap.Field  { return zap.String(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func TestApplyConfig(t *testing.T) {
	pc, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/collab")
	require.NoError(t, err)

	applyConfig(pc, Config{
		MaxConns:          12,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   time.Minute,
		HealthCheckPeriod: 15 * time.Second,
		ApplicationName:   "collab-service",
	})

	require.EqualValues(t, 12, pc.MaxConns)
	require.EqualValues(t, 2, pc.MinConns)
	require.Equal(t, time.Hour, pc.MaxConnLifetime)
	require.Equal(t, time.Minute, pc.MaxConnIdleTime)
	require.Equal(t, 15*time.Second, pc.HealthCheckPeriod)
	require.Equal(t, "collab-service", pc.ConnConfig.RuntimeParams["application_name"])
}

func TestApplyConfig_ZeroKeepsPgxDefaults(t *testing.T) {
	pc, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/collab")
	require.NoError(t, err)
	before := pc.MaxConns

	applyConfig(pc, Config{})

	require.Equal(t, before, pc.MaxConns)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPing_AppliesTimeout(t *testing.T) {
	var hadDeadline bool
	err := Ping(context.Background(), pingFunc(func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return errors.New("down")
	}))

	require.EqualError(t, err, "down")
	require.True(t, hadDeadline)
}

func TestNewPool_BadDSN(t *testing.T) {
	_, err := NewPool(context.Background(), Config{DSN: "://nope"})
	require.Error(t, err)
}

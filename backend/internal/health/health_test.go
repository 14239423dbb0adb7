package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherlockH0olms/Intellica/common/config"
	rediscommon "github.com/SherlockH0olms/Intellica/common/redis"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReport_AllPendingIsHealthy(t *testing.T) {
	c := NewChecker(time.Second, zap.NewNop())
	c.Register("database", nil)
	c.Register("redis", nil)
	c.Register("rabbitmq", nil)

	r := c.Report(context.Background())
	assert.Equal(t, OverallHealthy, r.Status)
	assert.Equal(t, map[string]Status{
		"api":      StatusOperational,
		"database": StatusPending,
		"redis":    StatusPending,
		"rabbitmq": StatusPending,
	}, r.Services)
}

func TestReport_FailureDegrades(t *testing.T) {
	c := NewChecker(time.Second, zap.NewNop())
	c.Register("database", func(context.Context) error { return nil })
	c.Register("redis", func(context.Context) error { return errors.New("connection refused") })

	r := c.Report(context.Background())
	assert.Equal(t, OverallDegraded, r.Status)
	assert.Equal(t, StatusOperational, r.Services["database"])
	assert.Equal(t, StatusUnavailable, r.Services["redis"])
}

func TestReport_CheckTimeout(t *testing.T) {
	c := NewChecker(20*time.Millisecond, zap.NewNop())
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	r := c.Report(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusUnavailable, r.Services["slow"])
}

func TestPostgresCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	assert.NoError(t, PostgresCheck(db)(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	err = PostgresCheck(db)(context.Background())
	assert.ErrorContains(t, err, "failed to ping database")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCheck_Unreachable(t *testing.T) {
	client := rediscommon.NewRedisClient(&config.RedisConfig{Addr: "127.0.0.1:1"})
	defer rediscommon.Close(client)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	assert.Error(t, RedisCheck(client)(ctx))
}

func TestRabbitMQCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if r.URL.Path != "/api/overview" || !ok || user != "guest" || pass != "guest" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rabbitmq_version":"3.12.0"}`))
	}))
	defer srv.Close()

	ok := RabbitMQCheck(NewManagementClient(srv.URL, "guest", "guest"))
	assert.NoError(t, ok(context.Background()))

	denied := RabbitMQCheck(NewManagementClient(srv.URL, "guest", "wrong"))
	assert.ErrorContains(t, denied(context.Background()), "401")
}

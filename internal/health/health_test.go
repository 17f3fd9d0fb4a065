package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestProbe_AllHealthy(t *testing.T) {
	p := NewProbe(map[string]Checker{
		"database": CheckFunc(func(context.Context) error { return nil }),
		"cache":    CheckFunc(func(context.Context) error { return nil }),
		"skipped":  nil,
	}, quiet())

	r := p.Check(context.Background())
	assert.True(t, r.Healthy)
	assert.Equal(t, "healthy", r.Status)
	assert.Equal(t, map[string]string{"database": StatusOK, "cache": StatusOK}, r.Checks)
	assert.Equal(t, []string{"cache", "database"}, p.Names())
}

func TestProbe_OneFailing(t *testing.T) {
	p := NewProbe(map[string]Checker{
		"database": CheckFunc(func(context.Context) error { return nil }),
		"cache":    CheckFunc(func(context.Context) error { return errors.New("connection refused") }),
	}, quiet())

	r := p.Check(context.Background())
	assert.False(t, r.Healthy)
	assert.Equal(t, "unhealthy", r.Status)
	assert.Equal(t, StatusError, r.Checks["cache"])
	assert.Equal(t, StatusOK, r.Checks["database"])
}

func TestProbe_Timeout(t *testing.T) {
	p := NewProbe(map[string]Checker{
		"vectorstore": CheckFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	}, quiet())
	p.timeout = 20 * time.Millisecond

	r := p.Check(context.Background())
	assert.False(t, r.Healthy)
}

func TestProbe_Empty(t *testing.T) {
	r := NewProbe(nil, quiet()).Check(context.Background())
	assert.True(t, r.Healthy)
	assert.Empty(t, r.Checks)
}

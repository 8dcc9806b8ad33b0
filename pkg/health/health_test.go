package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Name() string                { return f.name }
func (f fakeChecker) Check(context.Context) error { return f.err }

func TestCheckerRegistry_Check(t *testing.T) {
	open := false
	breaker := NewBreakerChecker("work", func() bool { return open })

	tests := []struct {
		name     string
		checkers []Checker
		open     bool
		want     Status
	}{
		{"no checkers", nil, false, StatusHealthy},
		{"all healthy", []Checker{fakeChecker{name: "redis"}, breaker}, false, StatusHealthy},
		{"breaker open", []Checker{fakeChecker{name: "redis"}, breaker}, true, StatusDegraded},
		{"dependency down", []Checker{fakeChecker{name: "redis", err: errors.New("down")}, breaker}, true, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open = tt.open
			r := NewCheckerRegistry()
			for _, c := range tt.checkers {
				r.Register(c)
			}

			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, len(tt.checkers))
		})
	}
}

func TestBreakerChecker_ReportsDegraded(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(NewBreakerChecker("work", func() bool { return true }))

	h := r.Check(context.Background())
	res := h.Checks["circuit_breaker:work"]
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Message, "open")
}

func TestKafkaChecker_NoBrokers(t *testing.T) {
	err := NewKafkaChecker(nil).Check(context.Background())
	assert.Error(t, err)
}

func TestKafkaChecker_Unreachable(t *testing.T) {
	err := NewKafkaChecker([]string{"127.0.0.1:1"}).Check(context.Background())
	assert.Error(t, err)
}

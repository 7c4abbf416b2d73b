package system

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockRunner is a testify mock of Runner, shared by tests of packages that
// drive the reader and executor.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, argv []string, timeout time.Duration) Result {
	args := m.Called(argv, timeout)
	res, _ := args.Get(0).(Result)
	if res.Argv == nil {
		res.Argv = append([]string(nil), argv...)
	}
	return res
}
